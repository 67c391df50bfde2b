package fetcher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseXMLTree(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<Opportunities>
	<OpportunityDetail>
		<OpportunityID> 100 </OpportunityID>
		<CFDANumbers>10.001</CFDANumbers>
		<CFDANumbers>10.002</CFDANumbers>
	</OpportunityDetail>
	<OpportunityDetail>
		<OpportunityID>200</OpportunityID>
	</OpportunityDetail>
</Opportunities>`

	root, err := ParseXMLTree(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "Opportunities", root.Name)

	details := root.ChildrenNamed("OpportunityDetail")
	require.Len(t, details, 2)
	assert.Equal(t, "100", details[0].ChildrenNamed("OpportunityID")[0].Text)
	assert.Len(t, details[0].ChildrenNamed("CFDANumbers"), 2)
	assert.Empty(t, details[1].ChildrenNamed("CFDANumbers"))
}

func TestParseXMLTree_NamespacedRoot(t *testing.T) {
	input := `<Grants xmlns="http://apply.grants.gov/system/OpportunityDetail-V1.0"><OpportunitySynopsisDetail_1_0><OpportunityID>1</OpportunityID></OpportunitySynopsisDetail_1_0></Grants>`
	root, err := ParseXMLTree(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "Grants", root.Name)
	assert.Equal(t, "1", root.Children[0].Children[0].Text)
}

func TestParseXMLTree_CDATAAndEntities(t *testing.T) {
	input := `<grant><Description><![CDATA[<p>Rural & urban</p>]]></Description><Title>A &amp; B</Title></grant>`
	root, err := ParseXMLTree(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "<p>Rural & urban</p>", root.Children[0].Text)
	assert.Equal(t, "A & B", root.Children[1].Text)
}

func TestParseXMLTree_BOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<grants><grant/></grants>`)...)
	root, err := ParseXMLTree(bytes.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "grants", root.Name)
}

func TestParseXMLTree_Latin1(t *testing.T) {
	input := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><grant><Title>Caf`), 0xE9, '<', '/', 'T', 'i', 't', 'l', 'e', '>', '<', '/', 'g', 'r', 'a', 'n', 't', '>')
	root, err := ParseXMLTree(bytes.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "Café", root.Children[0].Text)
}

func TestChildrenNamed_KeepsDocumentOrder(t *testing.T) {
	input := `<Grants><Forecast><ID>1</ID></Forecast><Other/><Synopsis><ID>2</ID></Synopsis><Forecast><ID>3</ID></Forecast></Grants>`
	root, err := ParseXMLTree(strings.NewReader(input))
	require.NoError(t, err)

	var ids []string
	for _, n := range root.ChildrenNamed("Synopsis", "Forecast") {
		ids = append(ids, n.Children[0].Text)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Empty(t, root.ChildrenNamed())
}

func TestParseXMLTree_Malformed(t *testing.T) {
	for _, input := range []string{
		`<Opportunities><OpportunityDetail></Opportunities>`,
		``,
		`just text`,
		`<a></a><b></b>`,
	} {
		_, err := ParseXMLTree(strings.NewReader(input))
		assert.Error(t, err, input)
	}
}
