package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schema-miner/internal/model"
)

type stubParser struct {
	lang  model.Language
	panic bool
}

func (s stubParser) Language() model.Language { return s.lang }

func (s stubParser) Parse(_ context.Context, in FileInput) (*model.FileExtraction, error) {
	if s.panic {
		panic("boom")
	}
	return NewExtraction(in), nil
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(stubParser{lang: model.LanguageJava})

	fx, err := r.Parse(context.Background(), FileInput{Path: "A.java", Language: model.LanguageJava, Content: []byte("a\nb")})
	require.NoError(t, err)
	assert.Equal(t, 2, fx.File.LineCount)
	assert.EqualValues(t, 1, r.Calls())

	_, err = r.Parse(context.Background(), FileInput{Path: "x.sql", Language: model.LanguageSQL})
	assert.Error(t, err)
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry(stubParser{lang: model.LanguageSQL, panic: true})
	fx, err := r.Parse(context.Background(), FileInput{Path: "bad.sql", Language: model.LanguageSQL})
	assert.Nil(t, fx)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad.sql", pe.Path)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(nil))
	assert.Equal(t, 1, CountLines([]byte("x")))
	assert.Equal(t, 1, CountLines([]byte("x\n")))
	assert.Equal(t, 3, CountLines([]byte("a\nb\nc")))
	assert.Equal(t, 2, LineAt([]byte("a\nb\nc"), 2))
}
