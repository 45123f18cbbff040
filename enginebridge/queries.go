package enginebridge

import (
	"fmt"
	"strings"
)

// Literal helper-query text the implementation is required to emit
// verbatim (spec §6 "Standard helper queries").
const (
	QueryNormalizedSpace = `normalize-space($result)`

	QueryAssertStringValue = `string-join(for $r in $result return string($r), " ")`

	QueryAssertStringValueNormalizedSpace = `normalize-space(` + QueryAssertStringValue + `)`

	// serializationParamsNamespace is the namespace of the
	// output:serialization-parameters element used by the default
	// serialization preamble (spec §6).
	serializationParamsNamespace = "http://www.w3.org/2010/xslt-xquery-serialization"

	QueryDefaultSerializationPreamble = `declare variable $local:default-serialization := ` +
		`<output:serialization-parameters xmlns:output="` + serializationParamsNamespace + `">` +
		`<output:method value="xml"/>` +
		`<output:indent value="no"/>` +
		`<output:omit-xml-declaration value="yes"/>` +
		`</output:serialization-parameters>;`

	QueryAssertXmlSerialization = QueryDefaultSerializationPreamble +
		"\n" + `fn:serialize($result, $local:default-serialization)`
)

// WrapperElementName is the artificial element assert-xml wraps
// expected/actual content in before diffing (spec §6).
const WrapperElementName = "ignorable-wrapper"

// QueryAssertXmlSerializationWrapped wraps $result in the same
// ignorable-wrapper element the expected side is parsed under before
// serializing, so both sides of an assert-xml diff are canonicalized
// on equal footing (spec §4.5: "Serialize $result the same way.").
var QueryAssertXmlSerializationWrapped = QueryDefaultSerializationPreamble +
	"\n" + fmt.Sprintf(`fn:serialize(<%s>{$result}</%s>, $local:default-serialization)`, WrapperElementName, WrapperElementName)

// wrapperOpenTag and wrapperCloseTag are the literal serialized forms
// of the ignorable-wrapper element assert-xml strips before comparing
// two canonicalized serializations (spec §6 "XML diff wrapping").
var (
	wrapperOpenTag  = "<" + WrapperElementName + ">"
	wrapperCloseTag = "</" + WrapperElementName + ">"
)

// StripWrapperElement removes the literal ignorable-wrapper open/close
// tags a serialized XML string was wrapped in, leaving the inner
// content untouched (spec §6 "XML diff wrapping"). Unlike an XPath
// prefix strip, this operates on the actual serialized text both
// comparison sides carry.
func StripWrapperElement(xml string) string {
	xml = strings.TrimPrefix(xml, wrapperOpenTag)
	xml = strings.TrimSuffix(xml, wrapperCloseTag)
	return xml
}

// permutationSortKeyFunction is the string-tagging sort-key helper
// embedded into every assert-permutation query (spec §4.5): it tags
// xs:string values with a "str_" prefix so they sort distinctly from
// numerics before both sides are deep-equal compared.
const permutationSortKeyFunction = `declare function local:sort-key($item as item()) as xs:string {
  if ($item instance of xs:string) then concat("str_", $item) else string($item)
};`

// BuildPermutationQuery embeds the string-tagging sort-key function
// and compares the sorted expected/actual sequences (spec §4.5
// assert-permutation, §6).
func BuildPermutationQuery(expr string) string {
	return permutationSortKeyFunction + "\n" +
		fmt.Sprintf(`deep-equal(`+
			`for $i in (%s) order by local:sort-key($i) return $i, `+
			`for $r in $result order by local:sort-key($r) return $r)`, expr)
}

// BuildAssertQuery wraps a raw xpath expression for TrueSingleton
// evaluation against the primary result's binding context.
func BuildAssertQuery(xpath string) string { return xpath }

// BuildDeepEqQuery builds the assert-deep-eq comparison (spec §4.5,
// §8 law: assert-deep-eq(x) = assert(deep-equal((x), $result))).
func BuildDeepEqQuery(expr string) string {
	return fmt.Sprintf(`deep-equal((%s), $result)`, expr)
}

// BuildEqQuery builds the assert-eq comparison.
func BuildEqQuery(expr string) string {
	return fmt.Sprintf(`(%s) eq $result`, expr)
}

// BuildMatchesQuery builds the serialization-matches comparison. The
// regex/flags are interpolated without escaping, reproducing the
// source's injection-unsafe behavior deliberately (spec §9 "Helper-
// query embedding").
func BuildMatchesQuery(regex, flags string) string {
	return fmt.Sprintf(`fn:matches($result, "%s", "%s")`, regex, flags)
}

// BuildInstanceOfQuery builds the helper query assert-type uses to ask
// the engine whether every item in $result is a subtype of baseType
// (an implementation choice for an otherwise unspecified mechanism —
// see DESIGN.md's Open Question log).
func BuildInstanceOfQuery(baseType string) string {
	return fmt.Sprintf(`every $i in $result satisfies $i instance of %s`, baseType)
}
