package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbox/internal/config"
)

func TestCollect(t *testing.T) {
	tests := []struct {
		name     string
		controls []Control
		want     []string
	}{
		{
			name: "empty_panel",
			want: []string{},
		},
		{
			name: "select_always_contributes",
			controls: []Control{
				&Select{Label: "opt", Options: []string{"-O0", "-O2"}, Value: "-O2"},
			},
			want: []string{"-O2"},
		},
		{
			name: "toggle_contributes_iff_checked",
			controls: []Control{
				&Toggle{Label: "w", Value: "-Wall", Checked: true},
				&Toggle{Label: "g", Value: "-g", Checked: false},
			},
			want: []string{"-Wall"},
		},
		{
			name: "document_order",
			controls: []Control{
				&Toggle{Label: "g", Value: "-g", Checked: true},
				&Select{Label: "std", Options: []string{"-std=c11"}, Value: "-std=c11"},
				&Toggle{Label: "w", Value: "-Wall", Checked: true},
				&Select{Label: "opt", Options: []string{"-O3"}, Value: "-O3"},
			},
			want: []string{"-g", "-std=c11", "-Wall", "-O3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPanel(tt.controls...)
			got := p.Collect()
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), len(tt.controls))
		})
	}
}

func TestCollectDeterministic(t *testing.T) {
	p := DefaultPanel()
	first := p.Collect()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Collect())
	}
	assert.Equal(t, []string{"-std=c17", "-O0", "-Wall"}, first)
}

func TestCollectReturnsFreshSlice(t *testing.T) {
	p := NewPanel(&Select{Label: "opt", Value: "-O2"})
	got := p.Collect()
	got[0] = "mutated"
	assert.Equal(t, []string{"-O2"}, p.Collect())
}

func TestActivate(t *testing.T) {
	opt := &Select{Label: "opt", Options: []string{"-O0", "-O1", "-O2"}, Value: "-O1"}
	warn := &Toggle{Label: "w", Value: "-Wall"}
	p := NewPanel(opt, warn)

	p.Activate()
	assert.Equal(t, "-O2", opt.Value)
	p.Activate()
	assert.Equal(t, "-O0", opt.Value, "wraps around")

	p.Move(1)
	p.Activate()
	assert.True(t, warn.Checked)
	assert.Equal(t, []string{"-O0", "-Wall"}, p.Collect())

	p.Activate()
	assert.False(t, warn.Checked)
	assert.Equal(t, []string{"-O0"}, p.Collect())
}

func TestSelectUnknownValueResets(t *testing.T) {
	s := &Select{Options: []string{"a", "b"}, Value: "zzz"}
	s.next()
	assert.Equal(t, "a", s.Value)

	empty := &Select{Value: "keep"}
	empty.next()
	assert.Equal(t, "keep", empty.Value)
}

func TestMoveClamps(t *testing.T) {
	p := DefaultPanel()
	p.Move(-5)
	assert.Equal(t, 0, p.Cursor())
	p.Move(100)
	assert.Equal(t, p.Len()-1, p.Cursor())

	empty := NewPanel()
	empty.Move(1)
	assert.Equal(t, 0, empty.Cursor())
	empty.Activate()
}

func TestPanelFromConfig(t *testing.T) {
	p := PanelFromConfig([]config.FlagControl{
		{Kind: "select", Name: "std", Options: []string{"-std=c99", "-std=c11"}},
		{Kind: "toggle", Name: "w", Value: "-Wall", Checked: true},
		{Kind: "toggle", Name: "pedantic", Value: "-pedantic"},
		{Kind: "select", Name: "opt", Options: []string{"-O0", "-O2"}, Value: "-O2"},
	})

	controls := p.Controls()
	require.Len(t, controls, 4)
	assert.Equal(t, "std", controls[0].Name())
	assert.Equal(t, KindSelect, controls[0].Kind())
	assert.Equal(t, KindToggle, controls[1].Kind())
	assert.Equal(t, []string{"-std=c99", "-Wall", "-O2"}, p.Collect())
}

func TestConfiguredSelectIgnoresChecked(t *testing.T) {
	p := PanelFromConfig([]config.FlagControl{
		{Kind: "select", Name: "opt", Options: []string{"-O0", "-O2"}, Value: "-O2", Checked: false},
		{Kind: "toggle", Name: "g", Value: "-g", Checked: false},
	})

	token, on := p.Controls()[0].Token()
	assert.True(t, on)
	assert.Equal(t, "-O2", token)
	assert.Equal(t, []string{"-O2"}, p.Collect())
}

func TestPanelFromConfigFallsBack(t *testing.T) {
	assert.Equal(t, DefaultPanel().Collect(), PanelFromConfig(nil).Collect())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "select", KindSelect.String())
	assert.Equal(t, "toggle", KindToggle.String())
}
