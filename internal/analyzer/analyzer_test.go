package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCollaborator struct {
	responses []Patch
	analyses  []string
	calls     int
}

func (s *scriptedCollaborator) AnalyzeAndPatch(ctx context.Context, prompt string) (Patch, string, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], s.analyses[i], nil
}

func TestTrigramOverlap_IdenticalStringsIsOne(t *testing.T) {
	assert.Equal(t, 1.0, TrigramOverlap("apt-get install -y libegl1", "apt-get install -y libegl1"))
}

func TestTrigramOverlap_WhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, TrigramOverlap("apt-get  install -y libegl1", "apt-get install -y libegl1"))
}

func TestTrigramOverlap_DifferentStrategyIsLow(t *testing.T) {
	overlap := TrigramOverlap("apt-get install -y libegl1", "pip install --upgrade numpy")
	assert.Less(t, overlap, 0.5)
}

func TestEquivalent_SingleCmdExactMatchOnly(t *testing.T) {
	assert.True(t, Equivalent(SingleCmd{Text: "pip install numpy"}, SingleCmd{Text: "pip install numpy"}))
	assert.False(t, Equivalent(SingleCmd{Text: "pip install numpy"}, SingleCmd{Text: "pip install numpy "}))
}

func TestEquivalent_DifferentPatchKindsNeverEquivalent(t *testing.T) {
	assert.False(t, Equivalent(SingleCmd{Text: "x"}, Rewrite{NewBody: "x"}))
}

func TestAnalyzer_RetriesWhenEquivalentToPrevious(t *testing.T) {
	previous := SingleCmd{Text: "apt-get install -y libegl1"}
	collab := &scriptedCollaborator{
		responses: []Patch{SingleCmd{Text: "apt-get install -y libegl1"}, SingleCmd{Text: "pip install --upgrade pyopengl"}},
		analyses:  []string{"repeat", "varied strategy"},
	}
	a := New(collab)

	patch, analysis, err := a.Analyze(context.Background(), "prompt", previous)
	require.NoError(t, err)
	assert.Equal(t, 2, collab.calls)
	assert.Equal(t, "varied strategy", analysis)
	assert.Equal(t, SingleCmd{Text: "pip install --upgrade pyopengl"}, patch)
}

func TestAnalyzer_NoRetryWhenNoPrevious(t *testing.T) {
	collab := &scriptedCollaborator{
		responses: []Patch{SingleCmd{Text: "apt-get install -y libegl1"}},
		analyses:  []string{"first attempt"},
	}
	a := New(collab)

	_, _, err := a.Analyze(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, collab.calls)
}

// TestAnalyzer_SharedLibraryErrorYieldsSystemPackageInstall seeds a prompt
// carrying a missing-shared-object error plus the classification rules and
// asserts the resulting command invokes the OS package manager, never a
// language package manager.
func TestAnalyzer_SharedLibraryErrorYieldsSystemPackageInstall(t *testing.T) {
	prompt := "ENV IMPLEMENT OUTPUT (Latest):\nexit_code=1\n" +
		"ImportError: libEGL.so.1: cannot open shared object file: No such file or directory\n" +
		"\nCLASSIFICATION RULES:\n" +
		"- \"cannot open shared object file\" errors are missing SYSTEM libraries: install via the detected OS package manager, never a language package.\n"

	collab := &policyCollaborator{}
	a := New(collab)

	patch, _, err := a.Analyze(context.Background(), prompt, nil)
	require.NoError(t, err)

	cmd, ok := patch.(SingleCmd)
	require.True(t, ok)
	assert.Contains(t, cmd.Text, "apt-get install -y")
	assert.NotContains(t, cmd.Text, "pip install")
}

// policyCollaborator applies the prompt's own classification rules the way
// a well-behaved model would: a shared-object error gets a system package,
// anything else a language package.
type policyCollaborator struct{}

func (c *policyCollaborator) AnalyzeAndPatch(_ context.Context, prompt string) (Patch, string, error) {
	if strings.Contains(prompt, "cannot open shared object file") {
		return SingleCmd{Text: "apt-get install -y libegl1"}, "missing system library", nil
	}
	return SingleCmd{Text: "pip install PyOpenGL"}, "missing python module", nil
}

func TestEquivalent_SystemVsLanguagePackageInstallsDiffer(t *testing.T) {
	sharedLib := SingleCmd{Text: "apt-get install -y libegl1 libqt6core6 libgl1-mesa-glx"}
	pythonPkg := SingleCmd{Text: "pip install PyOpenGL"}
	assert.False(t, Equivalent(sharedLib, pythonPkg))
}
