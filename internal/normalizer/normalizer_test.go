package normalizer

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-card-relay-go/internal/model"
)

func encoded(mimeType, content string) model.BodyPart {
	return model.BodyPart{
		MimeType: mimeType,
		Data:     base64.URLEncoding.EncodeToString([]byte(content)),
		Encoding: model.EncodingBase64URL,
	}
}

func TestNormalizeJoinsPartsInOrder(t *testing.T) {
	parts := []model.BodyPart{
		encoded("text/plain", "Hello team"),
		encoded("text/html", "<p>Please see <b>attached</b></p>"),
	}

	assert.Equal(t, "Hello team\nPlease see attached", Normalize(parts))
}

func TestNormalizeSkipsUndecodablePart(t *testing.T) {
	parts := []model.BodyPart{
		{MimeType: "text/plain", Data: "!!!not base64!!!", Encoding: model.EncodingBase64URL},
		encoded("text/plain", "still here"),
	}

	assert.Equal(t, "still here", Normalize(parts))
}

func TestNormalizePlainParts(t *testing.T) {
	parts := []model.BodyPart{
		{MimeType: "text/plain", Data: "already decoded", Encoding: model.EncodingNone},
	}
	assert.Equal(t, "already decoded", Normalize(parts))
	assert.Equal(t, "", Normalize(nil))
}

func TestDecodeAcceptsUnpaddedAndStandardBase64(t *testing.T) {
	raw := model.BodyPart{
		MimeType: "text/plain",
		Data:     base64.RawURLEncoding.EncodeToString([]byte("ab?")),
		Encoding: model.EncodingBase64URL,
	}
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "ab?", got)

	std := model.BodyPart{
		MimeType: "text/plain",
		Data:     base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff, 'x'}),
		Encoding: model.EncodingBase64URL,
	}
	got, err = Decode(std)
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	_, err = Decode(model.BodyPart{Encoding: "quoted-printable"})
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	doc := `<html><head><title>Ignored</title><style>p {color: red}</style></head>
<body><div>Hi&nbsp;there,</div><script>alert(1)</script>
<p>Link: <a href="https://example.com/x.pdf">https://example.com/x.pdf</a></p>
<ul><li>one</li><li>two</li></ul></body></html>`

	got := HTMLToText(doc)

	assert.Contains(t, got, "Hi there,")
	assert.Contains(t, got, "Link: https://example.com/x.pdf")
	assert.Contains(t, got, "one\n")
	assert.Contains(t, got, "two")
	assert.NotContains(t, got, "Ignored")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color")
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "\n\n\n")
}
