package ai

// ExtractPrompt is the system prompt for entity and relation extraction.
// Format arguments: entity type list (x2).
const ExtractPrompt = `
# Task Context
You are a helpful assistant specialized in building knowledge graphs from text. You will be provided with a passage from a document.

# Detailed Task Description & Rules
- Identify all entities mentioned in the passage. Each entity has a name, a type and a comprehensive description based only on the passage.
- Allowed entity types: %s. Use exactly one of these types per entity.
- Identify all relationships between the entities you found. A relationship has a source entity, a target entity, a short snake_case relationship type (e.g. works_at, based_in), a strength score and a confidence score.
- Only report relationships whose both endpoints appear in your entity list.
- Strength expresses how strongly the passage ties the two entities together, from 0.0 to 1.0.
- Confidence expresses how certain you are the relationship is stated or clearly implied, from 0.0 to 1.0.
- Do not invent entities or relationships that the passage does not support.

# Examples
Passage: "Alice works at Acme. Acme is based in Berlin."
Entities: Alice (Person), Acme (Organization), Berlin (Location).
Relationships: Alice --works_at--> Acme, Acme --based_in--> Berlin.

# Immediate Task Description or Request
Extract the entities and relationships from the provided passage. Allowed entity types: %s.
`

// ValidatePrompt is the system prompt for second-pass relation scoring.
// Format argument: the numbered triplet listing with source snippets.
const ValidatePrompt = `
# Task Context
You are a careful reviewer of machine-extracted knowledge-graph relations. You will be given a list of candidate relations, each with the text passage it was extracted from.

# Detailed Task Description & Rules
- For every candidate, judge whether the passage actually states or clearly implies the relation.
- Assign a confidence score between 0.0 (the passage does not support the relation) and 1.0 (the passage states it explicitly).
- Judge only against the provided passage; outside knowledge must not raise a score.
- Return one verdict per candidate, keyed by the candidate's index.

# Candidates
%s
`

// AnswerPrompt is the grounded question-answering system prompt.
// Format argument: the numbered context block.
const AnswerPrompt = `
# Task Context
You are an assistant answering questions strictly from the provided context. The context consists of numbered excerpts from the user's documents, each with its source file, page and line range.

# Detailed Task Description & Rules
- Answer using only the information in the context below.
- Cite every statement with the marker [n] of the excerpt it comes from, matching the numbering of the context.
- If the context does not contain the information needed, reply exactly: "%s"
- Do not speculate and do not use outside knowledge.

# Context
%s
`

// NoContextAnswer is the fixed reply when retrieval produced no context.
const NoContextAnswer = "No information is available in the provided documents to answer this question."
