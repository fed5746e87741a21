package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		cc   string
		want string
	}{
		{"+254712345678", "254", "254712345678"},
		{"0712345678", "254", "254712345678"},
		{"00254712345678", "254", "254712345678"},
		{"254712345678", "254", "254712345678"},
		{"712345678", "254", "254712345678"},
		{"+55 (11) 91234-5678", "55", "5511912345678"},
		{"  0712 345 678 ", "254", "254712345678"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in, tc.cc)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-phone", "07x1234", "1234", "+1234567890123456789"} {
		_, err := Normalize(in, "254")
		assert.ErrorIs(t, err, ErrInvalid, "%q", in)
	}
}
