package constraint

import (
	"github.com/roach88/lattice/internal/diag"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/session"
)

// Context is handed to a rule for one element.
type Context struct {
	session *session.Session
	element schema.Element
	entry   *Entry
	result  *diag.Result
}

// Element returns the element under evaluation.
func (c *Context) Element() schema.Element { return c.element }

// Property returns the property a property-scoped rule targets.
func (c *Context) Property() string { return c.entry.Property }

// Category returns the rule's category.
func (c *Context) Category() string { return c.entry.Category }

// Session returns the session the evaluation runs in.
func (c *Context) Session() *session.Session { return c.session }

// CreateErrorMessage records an Error diagnostic. template is formatted
// against the element (see diag.Format).
func (c *Context) CreateErrorMessage(template string) {
	c.Log(diag.SeverityError, template)
}

// CreateWarningMessage records a Warning diagnostic.
func (c *Context) CreateWarningMessage(template string) {
	c.Log(diag.SeverityWarning, template)
}

// Log records a diagnostic of the given severity.
func (c *Context) Log(severity diag.Severity, template string) {
	c.result.Add(diag.Message{
		Severity:     severity,
		Text:         diag.Format(template, c.element),
		Category:     c.entry.Category,
		Element:      c.element.ID(),
		PropertyName: c.entry.Property,
	})
}
