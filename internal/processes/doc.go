// Package processes provides reusable simulation units.
//
// Every constructor takes a configuration mapping that is overlaid on the
// unit's defaults with [process.Decode], so the same units can be built from
// Go code and from YAML composite descriptions.
package processes
