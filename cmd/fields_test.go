package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pipedrive-export/internal/model"
)

func TestRunFields(t *testing.T) {
	srv := newCRMServer(t, 0)
	c := testConfig(t, srv.URL)

	var buf bytes.Buffer
	require.NoError(t, runFields(context.Background(), c, &buf, false))
	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "channel")
	assert.Contains(t, out, "single_select")
	assert.Contains(t, out, "status")

	buf.Reset()
	require.NoError(t, runFields(context.Background(), c, &buf, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "channel")
}

func TestRunFields_Unavailable(t *testing.T) {
	srv := newCRMServer(t, 500)
	c := testConfig(t, srv.URL)

	err := runFields(context.Background(), c, &bytes.Buffer{}, false)
	require.Error(t, err)
}

func TestRunStages(t *testing.T) {
	srv := newCRMServer(t, 0)
	c := testConfig(t, srv.URL)

	var buf bytes.Buffer
	require.NoError(t, runStages(context.Background(), c, &buf, 36))
	out := buf.String()
	assert.Contains(t, out, "Qualificado")
	assert.Less(t, strings.Index(out, "Qualificado"), strings.Index(out, "Proposta"))
}

func TestFormatStages_NumericOrder(t *testing.T) {
	var buf bytes.Buffer
	formatStages(&buf, model.StageMap{"100": "Fechado", "9": "Novo", "20": "Proposta"})

	out := buf.String()
	assert.Less(t, strings.Index(out, "Novo"), strings.Index(out, "Proposta"))
	assert.Less(t, strings.Index(out, "Proposta"), strings.Index(out, "Fechado"))
}
