package services

import (
	"strings"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// splitStyled decodes one raw parameter value into its logical values.
func splitStyled(name, raw string, style expectation.ParameterStyle) []string {
	switch style {
	case expectation.StyleSimple, expectation.StyleSimpleExploded, expectation.StyleForm:
		return nonEmpty(strings.Split(raw, ","))

	case expectation.StyleLabel:
		return nonEmpty(strings.Split(strings.TrimPrefix(raw, "."), ","))

	case expectation.StyleLabelExploded:
		return nonEmpty(strings.Split(strings.TrimPrefix(raw, "."), "."))

	case expectation.StyleMatrix:
		raw = strings.TrimPrefix(raw, ";")
		raw = strings.TrimPrefix(raw, name+"=")
		return nonEmpty(strings.Split(raw, ","))

	case expectation.StyleMatrixExploded:
		parts := nonEmpty(strings.Split(raw, ";"))
		for i, p := range parts {
			parts[i] = strings.TrimPrefix(p, name+"=")
		}
		return parts

	case expectation.StyleFormExploded:
		parts := nonEmpty(strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '&' }))
		for i, p := range parts {
			parts[i] = strings.TrimPrefix(p, name+"=")
		}
		return parts

	case expectation.StyleSpaceDelimited, expectation.StyleSpaceDelimitedExploded:
		return nonEmpty(strings.Split(strings.ReplaceAll(raw, "%20", " "), " "))

	case expectation.StylePipeDelimited, expectation.StylePipeDelimitedExploded:
		return nonEmpty(strings.Split(raw, "|"))
	}
	return []string{raw}
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// deepObjectKey splits "name[sub]" into name and sub.
func deepObjectKey(key string) (name, sub string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	return key[:open], key[open+1 : len(key)-1], true
}
