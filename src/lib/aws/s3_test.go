package aws

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentKey(t *testing.T) {
	key := AttachmentKey("crew_c1", "../../etc/site photo.jpg")
	assert.True(t, strings.HasPrefix(key, "conversations/crew_c1/"))
	assert.True(t, strings.HasSuffix(key, "-site photo.jpg"))
	assert.NotContains(t, key, "..")

	assert.True(t, strings.HasSuffix(AttachmentKey("dm_a_b", `C:\scans\permit.pdf`), "-permit.pdf"))
	assert.True(t, strings.HasSuffix(AttachmentKey("dm_a_b", ""), "-file"))
	assert.NotEqual(t, AttachmentKey("x", "a.png"), AttachmentKey("x", "a.png"))
}
