package validate

import (
	"strings"
	"testing"

	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBook() NewBook {
	return NewBook{
		Author:          "Frank Herbert",
		Name:            "Dune",
		Price:           9.99,
		Genre:           "SciFi",
		Description:     "A desert planet and its spice.",
		DescriptionLong: strings.Repeat("Long description of the book. ", 3),
		Quantity:        3,
		BorrowPrice:     1.5,
	}
}

func TestStruct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     any
		fields []string
	}{
		{"login ok", Login{Username: "alice", Password: "x"}, nil},
		{"login empty", Login{}, []string{"username", "password"}},
		{"registration ok", Registration{Name: "Ann", Lastname: "Lee", Username: "annlee", Email: "a@b.de", Password: "secret"}, nil},
		{"registration short", Registration{Name: "An", Lastname: "Lee", Username: "ann", Email: "nope", Password: "123"},
			[]string{"name", "username", "email", "password"}},
		{"registration long username", Registration{Name: "Ann", Lastname: "Lee", Username: strings.Repeat("a", 21), Email: "a@b.de", Password: "secret"},
			[]string{"username"}},
		{"book ok", validBook(), nil},
		{"book negative price", func() NewBook { b := validBook(); b.Price = -1; return b }(), []string{"price"}},
		{"book short descriptions", func() NewBook { b := validBook(); b.Description = "short"; b.DescriptionLong = "short"; return b }(),
			[]string{"description", "descriptionLong"}},
		{"borrow ok", Borrow{Days: 7}, nil},
		{"borrow zero", Borrow{Days: 0}, []string{"days"}},
		{"borrow too long", Borrow{Days: 61}, []string{"days"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Struct(tt.in)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errs.ErrValidation)
			var ve *Error
			require.ErrorAs(t, err, &ve)
			fields := ve.Fields()
			assert.Len(t, fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()
	err := Struct(Registration{Name: "Ann", Lastname: "Lee", Username: "annlee", Email: "a@b.de", Password: "123"})
	require.EqualError(t, err, "password must be at least 6 characters")

	err = Struct(Borrow{Days: 90})
	require.EqualError(t, err, "days must be at most 60")
}
