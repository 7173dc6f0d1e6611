// Package audit defines the domain types and collaborator contracts shared by
// the PDP audit pipeline: capture artifacts, fact records, evidence, tickets,
// runs, and the error taxonomy.
package audit
