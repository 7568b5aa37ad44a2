package router

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logxen/netrap/internal/endpoint"
)

type fakeEndpoint struct {
	id   int
	kind endpoint.Kind
	fd   int

	queued [][]byte
}

func (f *fakeEndpoint) ID() int             { return f.id }
func (f *fakeEndpoint) FD() int             { return f.fd }
func (f *fakeEndpoint) Kind() endpoint.Kind { return f.kind }
func (f *fakeEndpoint) WantRead() bool      { return false }
func (f *fakeEndpoint) WantWrite() bool     { return false }
func (f *fakeEndpoint) WantErr() bool       { return false }
func (f *fakeEndpoint) HandleReadable() error { return nil }
func (f *fakeEndpoint) HandleWritable() error { return nil }
func (f *fakeEndpoint) HandleError() error    { return nil }
func (f *fakeEndpoint) Close() error          { return nil }

func (f *fakeEndpoint) QueueResponseLine(line []byte) {
	f.queued = append(f.queued, append([]byte(nil), line...))
}

type fakeLookup struct {
	byID map[int]endpoint.Endpoint
}

func (f *fakeLookup) Get(id int) (endpoint.Endpoint, bool) {
	e, ok := f.byID[id]
	return e, ok
}

func TestRouteLineMirrorsToStdoutAndQueuesOnClient(t *testing.T) {
	var stdout bytes.Buffer
	client := &fakeEndpoint{id: 1, kind: endpoint.KindClient}
	lookup := &fakeLookup{byID: map[int]endpoint.Endpoint{1: client}}
	r := New(lookup, &stdout)

	r.RouteLine([]byte("ok\n"), 1, true)

	require.Equal(t, "< ok\n", stdout.String())
	require.Len(t, client.queued, 1)
	require.Equal(t, "ok\n", string(client.queued[0]))
}

func TestRouteLineDropsResponseForVanishedSubmitter(t *testing.T) {
	var stdout bytes.Buffer
	lookup := &fakeLookup{byID: map[int]endpoint.Endpoint{}}
	r := New(lookup, &stdout)

	// submitterID 99 no longer resolves: the line still mirrors to stdout
	// (step 1/2) but nothing panics or blocks on the missing submitter.
	r.RouteLine([]byte("ok\n"), 99, true)
	require.Equal(t, "< ok\n", stdout.String())
}

func TestRouteLineWithNoSubmitterOnlyMirrors(t *testing.T) {
	var stdout bytes.Buffer
	lookup := &fakeLookup{byID: map[int]endpoint.Endpoint{}}
	r := New(lookup, &stdout)

	r.RouteLine([]byte("start\n"), 0, false)
	require.Equal(t, "< start\n", stdout.String())
}

func TestRouteLineSanitizesIllFormedUTF8(t *testing.T) {
	var stdout bytes.Buffer
	lookup := &fakeLookup{byID: map[int]endpoint.Endpoint{}}
	r := New(lookup, &stdout)

	r.RouteLine([]byte{0xff, 'o', 'k', '\n'}, 0, false)
	require.NotContains(t, stdout.String(), string([]byte{0xff}))
}
