package services

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

const unbounded = math.MaxInt

// xsdSchema is the subset of XML Schema needed to validate request bodies:
// global elements, named and anonymous complex types with sequence, all and
// choice groups, occurrence bounds, attributes and restricted simple types.
type xsdSchema struct {
	elements     map[string]*etree.Element
	complexTypes map[string]*etree.Element
	simpleTypes  map[string]*etree.Element
}

func parseXSD(doc string) (*xsdSchema, error) {
	d := etree.NewDocument()
	if err := d.ReadFromString(doc); err != nil {
		return nil, fmt.Errorf("invalid xml schema: %w", err)
	}
	root := d.Root()
	if root == nil || root.Tag != "schema" {
		return nil, errors.New("invalid xml schema: root element is not schema")
	}

	s := &xsdSchema{
		elements:     make(map[string]*etree.Element),
		complexTypes: make(map[string]*etree.Element),
		simpleTypes:  make(map[string]*etree.Element),
	}
	for _, el := range root.ChildElements() {
		name := el.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		switch el.Tag {
		case "element":
			s.elements[name] = el
		case "complexType":
			s.complexTypes[name] = el
		case "simpleType":
			s.simpleTypes[name] = el
		}
	}
	if len(s.elements) == 0 {
		return nil, errors.New("invalid xml schema: no global element declarations")
	}
	for _, group := range []map[string]*etree.Element{s.elements, s.complexTypes, s.simpleTypes} {
		for _, el := range group {
			if err := s.checkTypeRefs(el); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// checkTypeRefs verifies every named type and element reference below el resolves.
func (s *xsdSchema) checkTypeRefs(el *etree.Element) error {
	for _, attr := range []string{"type", "base"} {
		if ref := el.SelectAttrValue(attr, ""); ref != "" {
			local := stripXMLPrefix(ref)
			_, isComplex := s.complexTypes[local]
			_, isSimple := s.simpleTypes[local]
			if !isComplex && !isSimple && !isBuiltinXSDType(ref) {
				return fmt.Errorf("invalid xml schema: unknown type %q", ref)
			}
		}
	}
	if ref := el.SelectAttrValue("ref", ""); ref != "" && el.Tag == "element" {
		if _, ok := s.elements[stripXMLPrefix(ref)]; !ok {
			return fmt.Errorf("invalid xml schema: unknown element reference %q", ref)
		}
	}
	for _, c := range el.ChildElements() {
		if err := s.checkTypeRefs(c); err != nil {
			return err
		}
	}
	return nil
}

// validate checks an instance document against the schema.
func (s *xsdSchema) validate(body []byte) error {
	d := etree.NewDocument()
	if err := d.ReadFromBytes(body); err != nil {
		return err
	}
	root := d.Root()
	if root == nil {
		return errors.New("empty document")
	}
	decl, ok := s.elements[root.Tag]
	if !ok {
		return fmt.Errorf("element %q is not declared", root.Tag)
	}
	return s.validateElement(root, decl)
}

func (s *xsdSchema) resolveElement(decl *etree.Element) *etree.Element {
	if ref := decl.SelectAttrValue("ref", ""); ref != "" {
		if target, ok := s.elements[stripXMLPrefix(ref)]; ok {
			return target
		}
	}
	return decl
}

func (s *xsdSchema) validateElement(el, decl *etree.Element) error {
	decl = s.resolveElement(decl)

	if typ := decl.SelectAttrValue("type", ""); typ != "" {
		if ct, ok := s.complexTypes[stripXMLPrefix(typ)]; ok {
			return s.validateComplex(el, ct)
		}
		if len(el.ChildElements()) > 0 {
			return fmt.Errorf("element %q must not have child elements", el.Tag)
		}
		return s.validateSimpleValue(strings.TrimSpace(el.Text()), typ)
	}
	for _, c := range decl.ChildElements() {
		switch c.Tag {
		case "complexType":
			return s.validateComplex(el, c)
		case "simpleType":
			if len(el.ChildElements()) > 0 {
				return fmt.Errorf("element %q must not have child elements", el.Tag)
			}
			return s.validateSimpleType(strings.TrimSpace(el.Text()), c)
		}
	}
	// no type: anyType
	return nil
}

func (s *xsdSchema) validateComplex(el, ct *etree.Element) error {
	if err := s.validateAttributes(el, ct); err != nil {
		return err
	}

	children := el.ChildElements()
	for _, c := range ct.ChildElements() {
		switch c.Tag {
		case "sequence", "all", "choice":
			pos, err := s.consumeGroup(c, children, 0)
			if err != nil {
				return fmt.Errorf("element %q: %w", el.Tag, err)
			}
			if pos != len(children) {
				return fmt.Errorf("element %q: unexpected child %q", el.Tag, children[pos].Tag)
			}
			return nil
		case "simpleContent":
			if ext := firstChild(c, "extension", "restriction"); ext != nil {
				if err := s.validateAttributes(el, ext); err != nil {
					return err
				}
				return s.validateSimpleValue(strings.TrimSpace(el.Text()), ext.SelectAttrValue("base", "string"))
			}
			return nil
		case "complexContent":
			ext := firstChild(c, "extension", "restriction")
			if ext == nil {
				return nil
			}
			if firstChild(ext, "sequence", "all", "choice") == nil {
				if base, ok := s.complexTypes[stripXMLPrefix(ext.SelectAttrValue("base", ""))]; ok {
					if err := s.validateAttributes(el, ext); err != nil {
						return err
					}
					return s.validateComplex(el, base)
				}
			}
			return s.validateComplex(el, ext)
		}
	}

	if len(children) > 0 {
		return fmt.Errorf("element %q: unexpected child %q", el.Tag, children[0].Tag)
	}
	if ct.SelectAttrValue("mixed", "false") != "true" && strings.TrimSpace(el.Text()) != "" {
		return fmt.Errorf("element %q must not have text content", el.Tag)
	}
	return nil
}

func (s *xsdSchema) validateAttributes(el, ct *etree.Element) error {
	for _, a := range childrenTagged(ct, "attribute") {
		name := a.SelectAttrValue("name", stripXMLPrefix(a.SelectAttrValue("ref", "")))
		attr := el.SelectAttr(name)
		if attr == nil {
			if a.SelectAttrValue("use", "optional") == "required" {
				return fmt.Errorf("element %q: missing required attribute %q", el.Tag, name)
			}
			continue
		}
		if typ := a.SelectAttrValue("type", ""); typ != "" {
			if err := s.validateSimpleValue(attr.Value, typ); err != nil {
				return fmt.Errorf("element %q attribute %q: %w", el.Tag, name, err)
			}
		}
	}
	return nil
}

// consumeGroup matches a model group against children starting at pos and
// returns the position after the consumed elements.
func (s *xsdSchema) consumeGroup(group *etree.Element, children []*etree.Element, pos int) (int, error) {
	minOccurs, maxOccurs := occurs(group)
	count := 0
	for count < maxOccurs {
		next, err := s.consumeGroupOnce(group, children, pos)
		if err != nil {
			if count >= minOccurs {
				return pos, nil
			}
			return pos, err
		}
		if next == pos {
			// an empty occurrence satisfies the remaining minimum
			return pos, nil
		}
		pos = next
		count++
	}
	return pos, nil
}

func (s *xsdSchema) consumeGroupOnce(group *etree.Element, children []*etree.Element, pos int) (int, error) {
	particles := particlesOf(group)

	switch group.Tag {
	case "sequence":
		for _, p := range particles {
			next, err := s.consumeParticle(p, children, pos)
			if err != nil {
				return pos, err
			}
			pos = next
		}
		return pos, nil

	case "choice":
		for _, p := range particles {
			next, err := s.consumeParticle(p, children, pos)
			if err == nil && next > pos {
				return next, nil
			}
		}
		for _, p := range particles {
			if minOccurs, _ := occurs(p); minOccurs == 0 {
				return pos, nil
			}
		}
		if pos < len(children) {
			return pos, fmt.Errorf("unexpected child %q", children[pos].Tag)
		}
		return pos, errors.New("missing choice element")

	case "all":
		seen := make(map[string]int)
		byName := make(map[string]*etree.Element)
		for _, p := range particles {
			byName[stripXMLPrefix(s.resolveElement(p).SelectAttrValue("name", ""))] = p
		}
		for pos < len(children) {
			decl, ok := byName[children[pos].Tag]
			if !ok {
				break
			}
			if seen[children[pos].Tag] > 0 {
				return pos, fmt.Errorf("element %q occurs more than once", children[pos].Tag)
			}
			if err := s.validateElement(children[pos], decl); err != nil {
				return pos, err
			}
			seen[children[pos].Tag]++
			pos++
		}
		for name, p := range byName {
			if minOccurs, _ := occurs(p); minOccurs > 0 && seen[name] == 0 {
				return pos, fmt.Errorf("missing element %q", name)
			}
		}
		return pos, nil
	}
	return pos, nil
}

func (s *xsdSchema) consumeParticle(p *etree.Element, children []*etree.Element, pos int) (int, error) {
	if p.Tag != "element" {
		return s.consumeGroup(p, children, pos)
	}

	decl := s.resolveElement(p)
	name := decl.SelectAttrValue("name", "")
	minOccurs, maxOccurs := occurs(p)

	count := 0
	for count < maxOccurs && pos < len(children) && children[pos].Tag == name {
		if err := s.validateElement(children[pos], decl); err != nil {
			return pos, err
		}
		pos++
		count++
	}
	if count < minOccurs {
		return pos, fmt.Errorf("element %q occurs %d times, minimum %d", name, count, minOccurs)
	}
	return pos, nil
}

func (s *xsdSchema) validateSimpleValue(value, typ string) error {
	if st, ok := s.simpleTypes[stripXMLPrefix(typ)]; ok && !isBuiltinXSDType(typ) {
		return s.validateSimpleType(value, st)
	}
	return validateBuiltinXSD(value, stripXMLPrefix(typ))
}

func (s *xsdSchema) validateSimpleType(value string, st *etree.Element) error {
	r := firstChild(st, "restriction")
	if r == nil {
		// list and union are accepted as strings
		return nil
	}
	if err := s.validateSimpleValue(value, r.SelectAttrValue("base", "string")); err != nil {
		return err
	}

	var enums []string
	for _, facet := range r.ChildElements() {
		v := facet.SelectAttrValue("value", "")
		switch facet.Tag {
		case "enumeration":
			enums = append(enums, v)
		case "pattern":
			re, err := regexp.Compile("^(?:" + v + ")$")
			if err == nil && !re.MatchString(value) {
				return fmt.Errorf("value %q does not match pattern %q", value, v)
			}
		case "length", "minLength", "maxLength":
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			l := len([]rune(value))
			if (facet.Tag == "length" && l != n) || (facet.Tag == "minLength" && l < n) || (facet.Tag == "maxLength" && l > n) {
				return fmt.Errorf("value %q violates %s %d", value, facet.Tag, n)
			}
		case "minInclusive", "maxInclusive", "minExclusive", "maxExclusive":
			bound, err1 := strconv.ParseFloat(v, 64)
			actual, err2 := strconv.ParseFloat(value, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			if (facet.Tag == "minInclusive" && actual < bound) ||
				(facet.Tag == "maxInclusive" && actual > bound) ||
				(facet.Tag == "minExclusive" && actual <= bound) ||
				(facet.Tag == "maxExclusive" && actual >= bound) {
				return fmt.Errorf("value %q violates %s %s", value, facet.Tag, v)
			}
		}
	}
	if len(enums) > 0 {
		for _, e := range enums {
			if e == value {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", value, enums)
	}
	return nil
}

var builtinXSDTypes = map[string]bool{
	"anyType": true, "anySimpleType": true, "string": true, "normalizedString": true,
	"token": true, "language": true, "Name": true, "NCName": true, "ID": true,
	"IDREF": true, "QName": true, "anyURI": true, "base64Binary": true, "hexBinary": true,
	"boolean": true, "decimal": true, "float": true, "double": true,
	"integer": true, "int": true, "long": true, "short": true, "byte": true,
	"nonNegativeInteger": true, "positiveInteger": true, "nonPositiveInteger": true,
	"negativeInteger": true, "unsignedInt": true, "unsignedLong": true,
	"unsignedShort": true, "unsignedByte": true,
	"date": true, "dateTime": true, "time": true, "duration": true,
}

func isBuiltinXSDType(typ string) bool {
	return builtinXSDTypes[stripXMLPrefix(typ)]
}

func validateBuiltinXSD(value, typ string) error {
	bad := func() error { return fmt.Errorf("value %q is not a valid %s", value, typ) }

	switch typ {
	case "boolean":
		if value != "true" && value != "false" && value != "1" && value != "0" {
			return bad()
		}
	case "decimal", "float", "double":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return bad()
		}
	case "integer", "int", "long", "short", "byte":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return bad()
		}
	case "nonNegativeInteger", "unsignedInt", "unsignedLong", "unsignedShort", "unsignedByte":
		if _, err := strconv.ParseUint(strings.TrimPrefix(value, "+"), 10, 64); err != nil {
			return bad()
		}
	case "positiveInteger":
		if n, err := strconv.ParseInt(value, 10, 64); err != nil || n <= 0 {
			return bad()
		}
	case "negativeInteger":
		if n, err := strconv.ParseInt(value, 10, 64); err != nil || n >= 0 {
			return bad()
		}
	case "nonPositiveInteger":
		if n, err := strconv.ParseInt(value, 10, 64); err != nil || n > 0 {
			return bad()
		}
	case "date":
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return bad()
		}
	case "dateTime":
		if _, err := time.Parse(time.RFC3339Nano, value); err != nil {
			if _, err := time.Parse("2006-01-02T15:04:05", value); err != nil {
				return bad()
			}
		}
	case "time":
		if _, err := time.Parse("15:04:05", strings.TrimSuffix(value, "Z")); err != nil {
			return bad()
		}
	}
	return nil
}

func occurs(el *etree.Element) (minOccurs, maxOccurs int) {
	minOccurs, maxOccurs = 1, 1
	if v, err := strconv.Atoi(el.SelectAttrValue("minOccurs", "1")); err == nil {
		minOccurs = v
	}
	switch v := el.SelectAttrValue("maxOccurs", "1"); v {
	case "unbounded":
		maxOccurs = unbounded
	default:
		if n, err := strconv.Atoi(v); err == nil {
			maxOccurs = n
		}
	}
	return minOccurs, maxOccurs
}

func particlesOf(group *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, c := range group.ChildElements() {
		switch c.Tag {
		case "element", "sequence", "choice", "all":
			out = append(out, c)
		}
	}
	return out
}

func childrenTagged(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

func firstChild(el *etree.Element, tags ...string) *etree.Element {
	for _, c := range el.ChildElements() {
		for _, t := range tags {
			if c.Tag == t {
				return c
			}
		}
	}
	return nil
}

func stripXMLPrefix(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// xmlSchemaBodyPredicate compiles an XSD document into a body predicate.
func xmlSchemaBodyPredicate(doc string) (func([]byte) bool, error) {
	schema, err := parseXSD(doc)
	if err != nil {
		return nil, err
	}
	return func(body []byte) bool {
		return schema.validate(bytes.TrimSpace(body)) == nil
	}, nil
}
