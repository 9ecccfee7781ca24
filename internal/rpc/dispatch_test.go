package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
)

// fakeBackend is a minimal Backend fake for exercising dispatch routing and
// error mapping without a real store/engine/manager stack.
type fakeBackend struct {
	searchErr    error
	searchResult SearchResult
	calls        []string
}

func (f *fakeBackend) Status(context.Context) (StatusResult, error) {
	f.calls = append(f.calls, MethodStatus)
	return StatusResult{SocketPath: "/tmp/fastsearch.sock"}, nil
}

func (f *fakeBackend) Search(_ context.Context, p SearchParams) (SearchResult, error) {
	f.calls = append(f.calls, MethodSearch)
	if f.searchErr != nil {
		return SearchResult{}, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeBackend) Embed(context.Context, []string) (EmbedResult, error) {
	f.calls = append(f.calls, MethodEmbed)
	return EmbedResult{}, nil
}

func (f *fakeBackend) Rerank(context.Context, string, []string) (RerankResult, error) {
	f.calls = append(f.calls, MethodRerank)
	return RerankResult{}, nil
}

func (f *fakeBackend) LoadModel(_ context.Context, slot string) (LoadModelResult, error) {
	f.calls = append(f.calls, MethodLoadModel)
	return LoadModelResult{Slot: slot}, nil
}

func (f *fakeBackend) UnloadModel(_ context.Context, slot string) (UnloadModelResult, error) {
	f.calls = append(f.calls, MethodUnloadModel)
	return UnloadModelResult{Slot: slot}, nil
}

func (f *fakeBackend) ReloadConfig(context.Context, string) (ReloadConfigResult, error) {
	f.calls = append(f.calls, MethodReloadConfig)
	return ReloadConfigResult{Reloaded: true}, nil
}

func (f *fakeBackend) Shutdown(context.Context) (ShutdownResult, error) {
	f.calls = append(f.calls, MethodShutdown)
	return ShutdownResult{Stopping: true}, nil
}

func rawID(v int) json.RawMessage {
	b, _ := json.Marshal(v)
	return json.RawMessage(b)
}

func TestDispatch_PingReturnsOK(t *testing.T) {
	s := NewServer("", "", &fakeBackend{}, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodPing, ID: rawID(1)}
	body, _ := json.Marshal(req)

	resp := s.dispatch(context.Background(), body)

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(PingResult)
	require.True(t, ok)
	assert.True(t, result.OK)
}

func TestDispatch_MalformedJSONYieldsParseError(t *testing.T) {
	s := NewServer("", "", &fakeBackend{}, 0, nil)

	resp := s.dispatch(context.Background(), []byte(`{not json`))

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestDispatch_WrongProtocolVersionYieldsInvalidRequest(t *testing.T) {
	s := NewServer("", "", &fakeBackend{}, 0, nil)
	body, _ := json.Marshal(Request{JSONRPC: "1.0", Method: MethodPing, ID: rawID(1)})

	resp := s.dispatch(context.Background(), body)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestDispatch_UnknownMethodYieldsMethodNotFound(t *testing.T) {
	s := NewServer("", "", &fakeBackend{}, 0, nil)
	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "nonexistent", ID: rawID(1)})

	resp := s.dispatch(context.Background(), body)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestDispatch_InvalidParamsYieldsInvalidParams(t *testing.T) {
	s := NewServer("", "", &fakeBackend{}, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodSearch, ID: rawID(1), Params: json.RawMessage(`"not an object"`)}
	body, _ := json.Marshal(req)

	resp := s.dispatch(context.Background(), body)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestDispatch_AppErrorMapsToServerErrorWithKind(t *testing.T) {
	backend := &fakeBackend{searchErr: apperrors.New(apperrors.KindEmptyQuery, "query is empty")}
	s := NewServer("", "", backend, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodSearch, ID: rawID(1),
		Params: json.RawMessage(`{"query":"","db_path":"/tmp/x.db"}`)}
	body, _ := json.Marshal(req)

	resp := s.dispatch(context.Background(), body)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeServerError, resp.Error.Code)
	data, ok := resp.Error.Data.(errorData)
	require.True(t, ok)
	assert.Equal(t, string(apperrors.KindEmptyQuery), data.Kind)
}

func TestDispatch_SearchRoutesToBackendAndReturnsResult(t *testing.T) {
	backend := &fakeBackend{searchResult: SearchResult{Results: []ResultItem{{ID: 1, Source: "a.go"}}, SearchTimeMS: 1.5}}
	s := NewServer("", "", backend, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodSearch, ID: rawID(1),
		Params: json.RawMessage(`{"query":"foo","db_path":"/tmp/x.db","limit":5}`)}
	body, _ := json.Marshal(req)

	resp := s.dispatch(context.Background(), body)

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(SearchResult)
	require.True(t, ok)
	assert.Len(t, result.Results, 1)
	assert.Equal(t, []string{MethodSearch}, backend.calls)
}

func TestDispatch_ReloadConfigToleratesEmptyParams(t *testing.T) {
	backend := &fakeBackend{}
	s := NewServer("", "", backend, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodReloadConfig, ID: rawID(1)}
	body, _ := json.Marshal(req)

	resp := s.dispatch(context.Background(), body)

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(ReloadConfigResult)
	require.True(t, ok)
	assert.True(t, result.Reloaded)
}

func TestDispatch_RequestCounterIncrementsWhenBackendSupportsIt(t *testing.T) {
	backend := &countingFakeBackend{fakeBackend: &fakeBackend{}}
	s := NewServer("", "", backend, 0, nil)
	req := Request{JSONRPC: "2.0", Method: MethodPing, ID: rawID(1)}
	body, _ := json.Marshal(req)

	s.dispatch(context.Background(), body)
	s.dispatch(context.Background(), body)

	assert.Equal(t, 2, backend.count)
}

type countingFakeBackend struct {
	*fakeBackend
	count int
}

func (c *countingFakeBackend) CountRequest() {
	c.count++
}
