// Package tools defines the tool contract used by the engine and the table of
// remote tools declared by the capability provider.
package tools
