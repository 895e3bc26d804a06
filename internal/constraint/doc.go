// Package constraint indexes integrity rules by schema identity and
// evaluates them against batches of elements.
//
// Rules are registered against a schema. Evaluating an element walks its
// schema and every super-class up to the primitive root, firing the rules
// registered at each level. Check rules run on commit; Validate rules run
// on demand and may be filtered by category.
//
// A failing or panicking rule never aborts a batch. The failure becomes an
// Error diagnostic attributed to the element and evaluation moves on to the
// next element.
package constraint
