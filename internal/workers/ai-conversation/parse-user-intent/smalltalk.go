package parseuserintent

import (
	"regexp"
	"strings"
)

var smalltalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|hiya|yo|greetings)( there| team| assistant)?$`),
	regexp.MustCompile(`^good (morning|afternoon|evening|day)$`),
	regexp.MustCompile(`^(thanks|thank you|thx|ty|cheers)( so much| a lot)?$`),
	regexp.MustCompile(`^(bye|goodbye|see you|see ya|later)$`),
	regexp.MustCompile(`^how are you( doing| today)?$`),
	regexp.MustCompile(`^(who are you|what can you do|help)$`),
	regexp.MustCompile(`^(ok|okay|cool|great|nice)$`),
}

var nonWord = regexp.MustCompile(`[^a-z ]+`)

// MatchSmalltalk reports whether question is a greeting or similar small talk.
func MatchSmalltalk(question string) bool {
	q := strings.ToLower(question)
	q = nonWord.ReplaceAllString(q, " ")
	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return false
	}
	for _, p := range smalltalkPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
