package vertex

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

type fakeModel struct {
	resp *genai.GenerateContentResponse
	err  error
	got  []genai.Part
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.got = parts
	return f.resp, f.err
}

func TestGenerate_JoinsTextParts(t *testing.T) {
	fm := &fakeModel{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("# A"), genai.Text("\nb")}},
		}},
	}}
	c := newWithModel(Config{Model: "m"}, fm, nil)

	out, err := c.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "# A\nb", out)
	require.Len(t, fm.got, 1)
	assert.Equal(t, genai.Text("prompt"), fm.got[0])
	assert.NoError(t, c.Close())
}

func TestGenerate_EmptyResponse(t *testing.T) {
	c := newWithModel(Config{}, &fakeModel{resp: &genai.GenerateContentResponse{}}, nil)
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{status.Error(codes.Unauthenticated, "x"), common.ErrModelAuth},
		{status.Error(codes.PermissionDenied, "x"), common.ErrModelAuth},
		{status.Error(codes.ResourceExhausted, "x"), common.ErrModelQuota},
		{status.Error(codes.Unavailable, "x"), common.ErrModelUnavailable},
		{status.Error(codes.DeadlineExceeded, "x"), common.ErrModelTimeout},
		{status.Error(codes.InvalidArgument, "x"), common.ErrModelRejected},
		{context.DeadlineExceeded, common.ErrModelTimeout},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		assert.True(t, errors.Is(got, tt.sentinel), "%v -> %v", tt.err, got)
	}
	assert.Equal(t, context.Canceled, classify(context.Canceled))
}
