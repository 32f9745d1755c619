// Package registration turns form entries into GoToWebinar registrants.
package registration

// Field is a registrant field accepted by the registrant endpoint
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Fields lists the recognized registrant fields in display order
var Fields = []Field{
	{Name: "firstName", Label: "First Name"},
	{Name: "lastName", Label: "Last Name"},
	{Name: "email", Label: "Email"},
	{Name: "source", Label: "Source"},
	{Name: "address", Label: "Address"},
	{Name: "city", Label: "City"},
	{Name: "state", Label: "State"},
	{Name: "zipCode", Label: "ZIP Code"},
	{Name: "country", Label: "Country"},
	{Name: "phone", Label: "Phone"},
	{Name: "organization", Label: "Organization"},
	{Name: "jobTitle", Label: "Job Title"},
	{Name: "questionsAndComments", Label: "Questions & Comments"},
	{Name: "industry", Label: "Industry"},
	{Name: "numberOfEmployees", Label: "Number of Employees"},
	{Name: "purchasingTimeFrame", Label: "Purchasing Time Frame"},
	{Name: "purchasingRole", Label: "Purchasing Role"},
}

var recognized = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Fields))
	for _, f := range Fields {
		m[f.Name] = struct{}{}
	}
	return m
}()

// FieldNames returns the recognized field names in display order
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// IsRecognized reports whether name is a registrant field
func IsRecognized(name string) bool {
	_, ok := recognized[name]
	return ok
}

// Payload is the registrant body, keyed by recognized field name
type Payload map[string]string

// BuildPayload resolves a feed field map against entry values.
// Blank mappings and unrecognized names are skipped; a mapped field with no
// value in the entry is sent as an empty string.
func BuildPayload(fieldMap map[string]string, values map[string]string) Payload {
	p := make(Payload, len(fieldMap))
	for name, fieldID := range fieldMap {
		if fieldID == "" || !IsRecognized(name) {
			continue
		}
		p[name] = values[fieldID]
	}
	return p
}

// PayloadFilter may rewrite a payload before it is sent
type PayloadFilter func(p Payload, feed *Feed, entry *Entry) Payload
