package stream

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/hatcher/pilot/agent/records"
)

// Tool names that execute shell commands.
var bashFamily = map[string]bool{
	"bash":  true,
	"shell": true,
	"exec":  true,
}

var (
	prURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)
	// "git commit" prints `[branch abc1234] subject` on success.
	commitShaPattern = regexp.MustCompile(`\[[^\[\]]+ ([0-9a-f]{7,40})\]`)
)

// scanToolArtifacts inspects a completed bash-family tool call for side
// effects worth reporting: created pull requests, commits, and posted
// comments. Artifacts are deduplicated across the whole attempt.
func scanToolArtifacts(tool string, state records.ToolStateCompleted, res *Result, seenPRs, seenCommits map[string]bool) {
	if !bashFamily[tool] {
		return
	}
	command, ok := state.Input["command"].(string)
	if !ok || command == "" {
		return
	}
	ops := inspectCommand(command)
	output := state.Output

	if ops.createsPR {
		if url := prURLPattern.FindString(output); url != "" && !seenPRs[url] {
			seenPRs[url] = true
			res.PRsCreated = append(res.PRsCreated, url)
		}
	}
	if ops.createsCommit {
		if m := commitShaPattern.FindStringSubmatch(output); m != nil && !seenCommits[m[1]] {
			seenCommits[m[1]] = true
			res.CommitsCreated = append(res.CommitsCreated, m[1])
		}
	}
	if ops.createsComment {
		res.CommentsPosted++
	}
}

type commandOps struct {
	createsPR      bool
	createsCommit  bool
	createsComment bool
}

// inspectCommand parses the shell source and looks at each simple command's
// argv. Parsing (rather than substring matching) keeps a committed string
// like `echo "git commit"` from counting as a commit.
func inspectCommand(command string) commandOps {
	var ops commandOps
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		// Unparseable input still deserves a best-effort scan.
		return inspectFallback(command)
	}
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		argv := literalArgv(call)
		classifyArgv(argv, &ops)
		return true
	})
	return ops
}

func inspectFallback(command string) commandOps {
	return commandOps{
		createsPR:      strings.Contains(command, "gh pr create"),
		createsCommit:  strings.Contains(command, "git commit"),
		createsComment: strings.Contains(command, "pr comment") || strings.Contains(command, "issue comment"),
	}
}

// literalArgv extracts the statically-known words of a call. Words with
// expansions resolve to an empty string, which never matches a subcommand.
func literalArgv(call *syntax.CallExpr) []string {
	argv := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		argv = append(argv, literalWord(word))
	}
	return argv
}

func literalWord(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return ""
				}
				sb.WriteString(lit.Value)
			}
		default:
			return ""
		}
	}
	return sb.String()
}

func classifyArgv(argv []string, ops *commandOps) {
	if len(argv) == 0 {
		return
	}
	switch argv[0] {
	case "gh":
		sub := subcommands(argv[1:], 2)
		switch {
		case len(sub) >= 2 && sub[0] == "pr" && sub[1] == "create":
			ops.createsPR = true
		case len(sub) >= 2 && (sub[0] == "pr" || sub[0] == "issue") && sub[1] == "comment":
			ops.createsComment = true
		}
	case "git":
		sub := subcommands(argv[1:], 1)
		if len(sub) >= 1 && sub[0] == "commit" {
			ops.createsCommit = true
		}
	}
}

// subcommands returns up to n leading non-flag arguments.
func subcommands(args []string, n int) []string {
	out := make([]string, 0, n)
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		out = append(out, arg)
		if len(out) == n {
			break
		}
	}
	return out
}
