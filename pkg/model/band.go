package model

// Band is a horizontal region of the report holding elements.
type Band struct {
	BaseElement
	elements []Element
}

// NewBand creates a band of the given type.
func NewBand(typ ElementType) *Band {
	b := &Band{}
	b.init(b, typ)
	return b
}

func NewReportHeader() *Band { return NewBand(TypeReportHeader) }
func NewReportFooter() *Band { return NewBand(TypeReportFooter) }
func NewPageHeader() *Band { return NewBand(TypePageHeader) }
func NewPageFooter() *Band { return NewBand(TypePageFooter) }
func NewWatermark() *Band { return NewBand(TypeWatermark) }
func NewItemBand() *Band { return NewBand(TypeItemBand) }
func NewNoDataBand() *Band { return NewBand(TypeNoDataBand) }
func NewDetailsHeader() *Band { return NewBand(TypeDetailsHeader) }
func NewDetailsFooter() *Band { return NewBand(TypeDetailsFooter) }
func NewGroupHeader() *Band { return NewBand(TypeGroupHeader) }
func NewGroupFooter() *Band { return NewBand(TypeGroupFooter) }

// AddElement appends e to the band.
func (b *Band) AddElement(e Element) error {
	if err := adopt(b, e); err != nil {
		return err
	}
	b.elements = append(b.elements, e)
	return nil
}

// RemoveElement removes e from the band. It reports whether e was found.
func (b *Band) RemoveElement(e Element) bool {
	for i, child := range b.elements {
		if same(child, e) {
			b.elements = append(b.elements[:i], b.elements[i+1:]...)
			detach(child)
			return true
		}
	}
	return false
}

// Elements returns the children of the band.
func (b *Band) Elements() []Element {
	return append([]Element(nil), b.elements...)
}

// Len returns the number of children.
func (b *Band) Len() int { return len(b.elements) }

func (b *Band) children() []Element { return b.Elements() }

// TextField displays the value of a field of the current row.
type TextField struct {
	BaseElement
	Field string
	// Format is a layout hint such as "#,##0.00"; it is not applied here.
	Format string
}

// NewTextField creates a text field bound to field.
func NewTextField(field string) *TextField {
	t := &TextField{Field: field}
	t.init(t, TypeTextField)
	t.SetName(field)
	return t
}

// Label displays static text.
type Label struct {
	BaseElement
	Text string
}

// NewLabel creates a label.
func NewLabel(text string) *Label {
	l := &Label{Text: text}
	l.init(l, TypeLabel)
	return l
}
