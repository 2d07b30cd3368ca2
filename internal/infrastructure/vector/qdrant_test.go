package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteSelector(t *testing.T) {
	ids := []string{"42", "dien-tu/dien-thoai"}
	must := deleteSelector(ids).GetFilter().GetMust()
	require.Len(t, must, 2)

	hasID := must[0].GetHasId().GetHasId()
	require.Len(t, hasID, 2)
	assert.Equal(t, uint64(42), hasID[0].GetNum())
	assert.Equal(t, PointNum("dien-tu/dien-thoai"), hasID[1].GetNum())

	field := must[1].GetField()
	require.NotNil(t, field)
	assert.Equal(t, PayloadOriginalID, field.GetKey())
	assert.Equal(t, ids, field.GetMatch().GetKeywords().GetStrings())
}

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = buildFilter(map[string]any{PayloadSellerID: int64(1)})
	require.NoError(t, err)
	require.Len(t, f.GetMust(), 1)
	assert.Equal(t, PayloadSellerID, f.GetMust()[0].GetField().GetKey())

	_, err = buildFilter(map[string]any{"score": 1.5})
	assert.Error(t, err)
}
