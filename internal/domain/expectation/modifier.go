package expectation

// PathModifier substitutes the first match of Regex in a path.
type PathModifier struct {
	Regex        string
	Substitution string
}

// FieldsModifier layers add/replace/remove onto a multi-map.
type FieldsModifier struct {
	Add     Fields
	Replace Fields
	Remove  []string
}

// RequestModifier modifies a forwarded request.
type RequestModifier struct {
	Path                  *PathModifier
	QueryStringParameters *FieldsModifier
	Headers               *FieldsModifier
	Cookies               *FieldsModifier
}

// ResponseModifier modifies a forwarded response.
type ResponseModifier struct {
	Headers *FieldsModifier
	Cookies *FieldsModifier
}
