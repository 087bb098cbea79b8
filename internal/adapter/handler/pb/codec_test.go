package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec, "codec for content-subtype %q is not registered", CodecName)
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&CreateOrderRequest{CustomerId: "c1", Lines: []*OrderLineRequest{{ProductId: "P1", Quantity: 2}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"customer_id":"c1","lines":[{"product_id":"P1","quantity":2}]}`, string(data))
}
