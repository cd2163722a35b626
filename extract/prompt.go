package extract

import "strings"

// extractionSystemPrompt instructs the model to emit the tuple-delimiter
// protocol. Placeholders {entity_types}, {language}, {input_text},
// {tuple_delimiter}, and {completion_delimiter} are substituted at
// render time.
const extractionSystemPrompt = `You are a knowledge graph extraction engine. From the given text, identify all entities and all relationships between them.

Use {language} as the output language.

For each entity, output one line:
entity{tuple_delimiter}<entity_name>{tuple_delimiter}<entity_type>{tuple_delimiter}<entity_description>

- entity_name: the name of the entity, capitalized as in the text
- entity_type: one of the following types: [{entity_types}]
- entity_description: a comprehensive description of the entity's attributes and activities based on the text

For each relationship between two extracted entities, output one line:
relation{tuple_delimiter}<source_entity>{tuple_delimiter}<target_entity>{tuple_delimiter}<relationship_keywords>{tuple_delimiter}<relationship_description>

- source_entity and target_entity: names of entities from the lines above
- relationship_keywords: one or more high-level keywords summarizing the relationship
- relationship_description: an explanation of why the entities are related

Output one record per line and nothing else. When you are finished, output {completion_delimiter} on its own line.

TEXT:
{input_text}`

// extractionUserPrompt is supplied verbatim with the rendered system
// prompt.
const extractionUserPrompt = `Extract all entities and relationships from the text following the required format.`

// gleaningSystemPrompt re-presents the chunk together with the previous
// extraction so the model can fill in what it missed.
const gleaningSystemPrompt = `You are a knowledge graph extraction engine. A previous extraction pass over the text below missed some entities and relationships.

Use {language} as the output language. Entity types: [{entity_types}].

Emit ONLY entities and relationships that are NOT already present in the previous extraction, using the same format:
entity{tuple_delimiter}<entity_name>{tuple_delimiter}<entity_type>{tuple_delimiter}<entity_description>
relation{tuple_delimiter}<source_entity>{tuple_delimiter}<target_entity>{tuple_delimiter}<relationship_keywords>{tuple_delimiter}<relationship_description>

End with {completion_delimiter} on its own line.

TEXT:
{input_text}

PREVIOUS EXTRACTION:
{previous_response}`

// gleaningUserPrompt is the fixed follow-up instruction for every
// gleaning pass.
const gleaningUserPrompt = `MANY ENTITIES AND RELATIONS WERE MISSED IN THE LAST EXTRACTION. Add the missing ones below using the same format.`

// promptVars is the substitution set for prompt templates.
type promptVars struct {
	entityTypes      string
	language         string
	inputText        string
	previousResponse string
}

// renderPrompt fills a template's placeholders. The delimiter
// placeholders always resolve to the canonical wire constants.
func renderPrompt(template string, vars promptVars) string {
	r := strings.NewReplacer(
		"{tuple_delimiter}", TupleDelimiter,
		"{completion_delimiter}", CompletionDelimiter,
		"{entity_types}", vars.entityTypes,
		"{language}", vars.language,
		"{input_text}", vars.inputText,
		"{previous_response}", vars.previousResponse,
	)
	return r.Replace(template)
}
