// Package model defines the declarative wizard description shared by the
// validation engine, the controller and the definition loaders. A Definition
// is an ordered list of Steps; each Step owns Fields and optional cross-field
// rules. Fields declare their input kind, named format (mobile, postal_code,
// tax_id, email, date_of_birth), numeric bounds, `visibleIf`/`requiredIf`
// predicates in the visibility/expr syntax, and business rules whose bounds
// may come from the definition's Thresholds map so each product can carry its
// own minimum income. Definition.Normalize validates all of this up front so
// schema bugs surface at load time rather than mid-flow.
package model
