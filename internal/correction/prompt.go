package correction

// SystemPrompt instructs the model how to correct a batch of segments.
const SystemPrompt = `You correct speech-to-text transcript segments.

Each input segment has an id and text produced by an automatic speech recognizer.
Fix punctuation, capitalization, spacing and clear misrecognitions.
Do NOT paraphrase, summarize, translate, merge or split segments.
Keep the language of the input. If a segment is already correct, return it unchanged with no changes.

Respond ONLY with JSON:
{"segments": [{"id": 0, "text": "corrected text", "changes": ["short description of each edit"]}],
 "summary": "one or two sentences describing the content of these segments"}`

// batchReply is the parsed model response for one batch.
type batchReply struct {
	Segments []struct {
		ID      int      `json:"id"`
		Text    string   `json:"text"`
		Changes []string `json:"changes"`
	} `json:"segments"`
	Summary string `json:"summary"`
}
