package bst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSlotResolverOrderAndDefault(t *testing.T) {
	def := SlotDef{
		Resolvers:  []string{ResolverKeywordMap, ResolverContextInference},
		KeywordMap: map[string]string{"golang": "go"},
		Default:    "python",
	}

	assert.Equal(t, "go", resolveSlot(def, "rewrite this in golang", nil))
	assert.Equal(t, "rust", resolveSlot(def, "rewrite this in rust", nil),
		"later resolvers run when earlier ones miss")
	assert.Equal(t, "python", resolveSlot(def, "rewrite this", nil),
		"the default applies last")
}

func TestResolveLastFilePrefersDelimitedNames(t *testing.T) {
	assert.Equal(t, "util.py", fileIn("update main.go and also `util.py`"),
		"backticked names beat bare ones in the same text")
	assert.Equal(t, "config.yaml", fileIn(`open "config.yaml" please`))
	assert.Equal(t, "main.go", fileIn("update main.go now"))
	assert.Equal(t, "", fileIn("no files here"))
}

func TestResolveLastFileScansHistoryNewestFirst(t *testing.T) {
	history := []Turn{
		{Role: "user", Text: "we started from a.py"},
		{Role: "assistant", Text: "then I edited b.py"},
	}
	assert.Equal(t, "b.py", resolveLastFile("what changed?", history))
	assert.Equal(t, "c.py", resolveLastFile("check c.py too", history),
		"the current message wins over history")
}

func TestResolveLastFileHistoryWindow(t *testing.T) {
	history := []Turn{{Text: "the only file is old.py"}}
	for i := 0; i < maxHistoryScanTurns; i++ {
		history = append(history, Turn{Text: "no mention"})
	}

	def := SlotDef{Resolvers: []string{ResolverLastMentionedFile}}
	assert.Equal(t, "", resolveSlot(def, "what file?", history),
		"mentions beyond the scan window are forgotten")
}

func TestResolveFileExtensionInfersLanguage(t *testing.T) {
	def := SlotDef{Resolvers: []string{ResolverFileExtension}}
	assert.Equal(t, "ruby", resolveSlot(def, "fix `script.rb`", nil))
	assert.Equal(t, "go", resolveSlot(def, "fix parser.go", nil))
	assert.Equal(t, "", resolveSlot(def, "fix data.xyz", nil),
		"unknown extensions resolve nothing")
}

func TestResolveLastPath(t *testing.T) {
	def := SlotDef{Resolvers: []string{ResolverLastMentionedPath}}
	assert.Equal(t, "/var/log/app", resolveSlot(def, "look in /var/log/app", nil))
	assert.Equal(t, "./build", resolveSlot(def, "artifacts land in ./build", nil))

	history := []Turn{{Text: "sources live under ~/projects/aegis"}}
	assert.Equal(t, "~/projects/aegis", resolveSlot(def, "where were the sources?", history))
}

func TestResolveLastEntity(t *testing.T) {
	def := SlotDef{Resolvers: []string{ResolverLastMentionedEntity}}
	assert.Equal(t, "Globex Corp", resolveSlot(def, `find "Globex Corp" records`, nil))

	history := []Turn{{Text: "the subject is 'Meridian Holdings'"}}
	assert.Equal(t, "Meridian Holdings", resolveSlot(def, "anything new on them?", history))
}

func TestResolveHistoryScanUsesKeywordMap(t *testing.T) {
	def := SlotDef{
		Resolvers:  []string{ResolverHistoryScan},
		KeywordMap: map[string]string{"kubernetes": "k8s", "virtual machine": "vm"},
	}
	history := []Turn{
		{Text: "we provisioned a virtual machine"},
		{Text: "then moved to the Kubernetes cluster"},
	}
	assert.Equal(t, "k8s", resolveSlot(def, "scale it up", history),
		"newest matching turn wins")
}

func TestResolveContextInference(t *testing.T) {
	def := SlotDef{Resolvers: []string{ResolverContextInference}}

	assert.Equal(t, "true", resolveSlot(def, "enable verbose mode", nil))
	assert.Equal(t, "false", resolveSlot(def, "turn the cache off", nil))
	assert.Equal(t, "rust", resolveSlot(def, "use rust for this", nil))
	assert.Equal(t, "", resolveSlot(def, "make this faster", nil))

	enum := SlotDef{
		Resolvers:  []string{ResolverContextInference},
		KeywordMap: map[string]string{"production": "prod"},
	}
	assert.Equal(t, "prod", resolveSlot(enum, "push straight to prod", nil),
		"mapped values are recognized when named directly")
}

func TestContainsWordBoundaries(t *testing.T) {
	assert.True(t, containsWord("turn it on", "on"))
	assert.False(t, containsWord("continue the work", "on"))
	assert.True(t, containsWord("on the table", "on"))
	assert.False(t, containsWord("python_only", "python"))
}
