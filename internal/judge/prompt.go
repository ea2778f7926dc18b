package judge

import "strings"

const promptTemplate = `You are a logical consistency checker.

Claim:
{{claim}}

Novel Evidence:
{{evidence}}

Instructions:
- Use ONLY the provided evidence.
- Do NOT infer missing facts.
- If the evidence is insufficient, answer NEUTRAL.

Respond with exactly ONE word:
CONTRADICT, SUPPORT, or NEUTRAL`

// BuildPrompt renders the judgment prompt for one claim and one evidence passage
func BuildPrompt(claim, evidence string) string {
	r := strings.NewReplacer("{{claim}}", claim, "{{evidence}}", evidence)
	return r.Replace(promptTemplate)
}
