// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tcbridge/internal/errors"
)

func TestParseQdiscShow(t *testing.T) {
	out := `qdisc mq 0: root
qdisc fq_codel 0: parent :2 limit 10240p flows 1024 quantum 1514 target 5ms interval 100ms memory_limit 32Mb ecn drop_batch 64
qdisc fq_codel 0: parent :1 limit 10240p flows 1024 quantum 1514 target 5ms interval 100ms memory_limit 32Mb ecn drop_batch 64
qdisc ingress ffff: parent ffff:fff1 ----------------
`
	qdiscs, err := ParseQdiscShow(out)
	require.NoError(t, err)
	require.Len(t, qdiscs, 4)

	assert.Equal(t, Qdisc{Kind: "mq", Handle: "0:", Parent: "root"}, qdiscs[0])
	assert.True(t, qdiscs[0].Root())
	assert.Equal(t, ":2", qdiscs[1].Parent)
	assert.Equal(t, "ingress", qdiscs[3].Kind)
}

func TestParseQdiscShow_StatisticsLinesSkipped(t *testing.T) {
	out := "qdisc netem 1: root refcnt 2 limit 1000 loss 1%\n" +
		" Sent 1234 bytes 12 pkt (dropped 0, overlimits 0 requeues 0)\n" +
		" backlog 0b 0p requeues 0\n"

	qdiscs, err := ParseQdiscShow(out)
	require.NoError(t, err)
	require.Len(t, qdiscs, 1)
	assert.Equal(t, "limit 1000 loss 1%", qdiscs[0].Options)
}

func TestParseQdiscShow_RefcntNotAnOption(t *testing.T) {
	out := "qdisc htb 1: root refcnt 2 r2q 10 default 0x1\n" +
		"qdisc netem 10: parent 1:1 limit 1000 delay 50ms\n" +
		"qdisc noqueue 0: root refcnt 2\n"

	qdiscs, err := ParseQdiscShow(out)
	require.NoError(t, err)
	require.Len(t, qdiscs, 3)
	assert.Equal(t, "r2q 10 default 0x1", qdiscs[0].Options)
	assert.Equal(t, "limit 1000 delay 50ms", qdiscs[1].Options)
	assert.Empty(t, qdiscs[2].Options)
}

func TestParseQdiscShow_Malformed(t *testing.T) {
	for _, out := range []string{
		"Error: something odd\n",
		"qdisc netem\n",
		"qdisc netem 1: sideways 2\n",
	} {
		_, err := ParseQdiscShow(out)
		require.Error(t, err, out)
		assert.Equal(t, errors.KindParseFailed, errors.GetKind(err))
	}
}

func TestBuildStatus(t *testing.T) {
	st, err := BuildStatus("eth0", "qdisc noqueue 0: root refcnt 2\n")
	require.NoError(t, err)
	assert.False(t, st.HasRules)
	assert.Equal(t, "qdisc noqueue 0: root refcnt 2", st.Description)

	st, err = BuildStatus("eth0", "qdisc netem 1: root refcnt 2 limit 1000 delay 50ms\n")
	require.NoError(t, err)
	assert.True(t, st.HasRules)

	st, err = BuildStatus("eth0", "")
	require.NoError(t, err)
	assert.False(t, st.HasRules)
	assert.Equal(t, NoRulesDescription, st.Description)
	assert.NotNil(t, st.Qdiscs)
}
