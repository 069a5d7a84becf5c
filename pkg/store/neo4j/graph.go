package neo4j

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/everspan/cognita/pkg/errs"
	"github.com/everspan/cognita/pkg/model"
)

// GraphStore implements store.GraphStore on Neo4j. Nodes carry their engine
// type as the label and their ID in the "id" property; writes are MERGE-based
// upserts so re-writing a batch is a no-op.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewGraphStoreParams configures the store.
type NewGraphStoreParams struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

// NewGraphStore connects to Neo4j and verifies connectivity.
func NewGraphStore(ctx context.Context, params NewGraphStoreParams) (*GraphStore, error) {
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(
		params.URI,
		neo4j.BasicAuth(params.User, params.Password, ""),
		func(cfg *neo4j.Config) {
			cfg.SocketConnectTimeout = params.Timeout
		},
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindPermanent, "init neo4j driver", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, errs.Wrap(errs.KindTransient, "verify neo4j connectivity", err)
	}

	return &GraphStore{driver: driver, database: params.Database, timeout: params.Timeout}, nil
}

// Close releases the underlying driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraint on node IDs.
func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT chunk_id_unique IF NOT EXISTS FOR (n:DocumentChunk) REQUIRE n.id IS UNIQUE`,
	}
	for _, stmt := range stmts {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return errs.Wrap(errs.KindTransient, "neo4j schema init", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return errs.Wrap(errs.KindTransient, "neo4j schema init", err)
		}
	}
	return nil
}

func (s *GraphStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
}

func (s *GraphStore) AddNodes(ctx context.Context, nodes []model.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	byLabel := make(map[string][]map[string]any)
	for _, node := range nodes {
		props := map[string]any{"id": node.ID.String()}
		for k, v := range node.Props {
			props[k] = v
		}
		byLabel[node.Type] = append(byLabel[node.Type], props)
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for label, batch := range byLabel {
			query := `
UNWIND $nodes AS n
MERGE (m:` + sanitizeRelType(label) + ` {id: n.id})
SET m += n`
			res, err := tx.Run(ctx, query, map[string]any{"nodes": batch})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return errs.Wrap(errs.KindTransient, "add nodes", err)
}

func (s *GraphStore) AddEdges(ctx context.Context, edges []model.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	byType := make(map[string][]map[string]any)
	for _, edge := range edges {
		rel := map[string]any{
			"source_id": edge.SourceID.String(),
			"target_id": edge.TargetID.String(),
			"props":     edge.Props,
		}
		byType[edge.Type] = append(byType[edge.Type], rel)
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for relType, batch := range byType {
			query := `
UNWIND $rels AS r
MATCH (src {id: r.source_id})
MATCH (tgt {id: r.target_id})
MERGE (src)-[e:` + sanitizeRelType(relType) + `]->(tgt)
SET e += r.props, e.type = $rel_type`
			res, err := tx.Run(ctx, query, map[string]any{"rels": batch, "rel_type": relType})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return errs.Wrap(errs.KindTransient, "add edges", err)
}

func (s *GraphStore) QueryNodesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n) WHERE n.id IN $ids
RETURN n.id AS id, labels(n) AS labels, properties(n) AS props`,
			map[string]any{"ids": idStrings})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "query nodes", err)
	}

	var nodes []model.Node
	for _, record := range records.([]*neo4j.Record) {
		node, ok := recordToNode(record)
		if ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (s *GraphStore) QueryNeighbors(ctx context.Context, id uuid.UUID, depth int) ([]model.Edge, error) {
	if depth <= 0 {
		depth = 1
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// variable-length pattern; depth is validated above so string
		// concatenation stays safe
		query := `
MATCH (start {id: $id})-[*1..` + strconv.Itoa(depth) + `]-(other)
WITH collect(DISTINCT other) + start AS reachable
UNWIND reachable AS a
MATCH (a)-[e]->(b)
WHERE b IN reachable
RETURN DISTINCT a.id AS source_id, b.id AS target_id, type(e) AS rel_label, e.type AS rel_type, properties(e) AS props`
		res, err := tx.Run(ctx, query, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "query neighbors", err)
	}

	var edges []model.Edge
	for _, record := range records.([]*neo4j.Record) {
		edge, ok := recordToEdge(record)
		if ok {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

func (s *GraphStore) DeleteSubgraph(ctx context.Context, datasetID uuid.UUID) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n {dataset_id: $dataset_id})
DETACH DELETE n`,
			map[string]any{"dataset_id": datasetID.String()})
		if err != nil {
			return nil, err
		}
		return nil, consumeErr(res.Consume(ctx))
	})
	return errs.Wrap(errs.KindTransient, "delete subgraph", err)
}

func recordToNode(record *neo4j.Record) (model.Node, bool) {
	idVal, _ := record.Get("id")
	idStr, _ := idVal.(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.Node{}, false
	}

	labelsVal, _ := record.Get("labels")
	nodeType := ""
	if labels, ok := labelsVal.([]any); ok && len(labels) > 0 {
		nodeType, _ = labels[0].(string)
	}

	propsVal, _ := record.Get("props")
	props, _ := propsVal.(map[string]any)
	delete(props, "id")

	return model.Node{ID: id, Type: nodeType, Props: props}, true
}

func recordToEdge(record *neo4j.Record) (model.Edge, bool) {
	sourceVal, _ := record.Get("source_id")
	targetVal, _ := record.Get("target_id")
	sourceStr, _ := sourceVal.(string)
	targetStr, _ := targetVal.(string)
	sourceID, errS := uuid.Parse(sourceStr)
	targetID, errT := uuid.Parse(targetStr)
	if errS != nil || errT != nil {
		return model.Edge{}, false
	}

	relType := ""
	if v, ok := record.Get("rel_type"); ok {
		relType, _ = v.(string)
	}
	if relType == "" {
		if v, ok := record.Get("rel_label"); ok {
			relType, _ = v.(string)
		}
	}

	propsVal, _ := record.Get("props")
	props, _ := propsVal.(map[string]any)

	return model.Edge{SourceID: sourceID, TargetID: targetID, Type: relType, Props: props}, true
}

// sanitizeRelType restricts relationship labels to identifier characters;
// engine relation types are already snake_case so this is a backstop against
// query injection through node properties.
func sanitizeRelType(relType string) string {
	out := make([]byte, 0, len(relType))
	for i := 0; i < len(relType); i++ {
		c := relType[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "related_to"
	}
	return string(out)
}

func consumeErr(_ neo4j.ResultSummary, err error) error {
	return err
}
