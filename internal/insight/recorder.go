package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kbagent/internal/evidence"
	"kbagent/internal/ranking"
	"kbagent/internal/storage"
)

// Resolution states of a question event, shared with the storage layer so
// topic counters tally the same values the events carry.
const (
	ResolutionAnswered   = storage.ResolutionAnswered
	ResolutionUnresolved = storage.ResolutionUnresolved
	ResolutionAmbiguous  = storage.ResolutionAmbiguous
)

const (
	// Only the most recent clusters of a topic are candidates for reuse;
	// older phrasings age out of matching.
	recentClusterWindow = 40
	// Minimum centroid cosine similarity to fold a question into an
	// existing cluster when the normalized key differs.
	centroidSimilarityFloor = 0.83
)

// Outcome is everything worth remembering about one answered question.
type Outcome struct {
	AgentID          string
	Question         string
	Embedding        []float32
	Answer           string
	Mode             evidence.Mode
	Confidence       float64
	HasImageContext  bool
	SelectedSourceID string
	Alternatives     []storage.Alternative
}

// Recorded identifies what Record wrote, so callers can hand the ambiguity
// event ID back to the user for later resolution.
type Recorded struct {
	QuestionEventID  string
	AmbiguityEventID string
	TopicKey         string
	ClusterID        int64
}

// Recorder turns answer outcomes into topic, cluster, and event rows. All
// writes of one outcome share a transaction.
type Recorder struct {
	store storage.InsightStore
}

// NewRecorder creates a new Recorder.
func NewRecorder(store storage.InsightStore) *Recorder {
	return &Recorder{store: store}
}

// Record persists one question outcome: bumps the topic, finds or creates
// the cluster, inserts the event, and files an ambiguity event when the
// answer was torn between sources.
func (r *Recorder) Record(ctx context.Context, outcome Outcome) (*Recorded, error) {
	if outcome.AgentID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}
	question := strings.TrimSpace(outcome.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	normalized := NormalizeQuestion(question)
	topicKey, topicLabel := DeriveTopic(normalized)
	resolution := resolutionFor(outcome)

	recorded := &Recorded{TopicKey: topicKey}

	err := r.store.InTx(ctx, func(tx storage.InsightStore) error {
		topic, err := tx.UpsertTopic(ctx, outcome.AgentID, topicKey, topicLabel, resolution)
		if err != nil {
			return err
		}

		clusterID, err := r.assignCluster(ctx, tx, topic.ID, normalized, question, outcome)
		if err != nil {
			return err
		}
		recorded.ClusterID = clusterID

		event := &storage.EventRecord{
			ID:               uuid.New().String(),
			AgentID:          outcome.AgentID,
			TopicID:          topic.ID,
			ClusterID:        clusterID,
			Question:         question,
			NormalizedKey:    normalized,
			Embedding:        outcome.Embedding,
			Answer:           outcome.Answer,
			Mode:             string(outcome.Mode),
			Confidence:       outcome.Confidence,
			Resolution:       resolution,
			HasImageContext:  outcome.HasImageContext,
			SelectedSourceID: outcome.SelectedSourceID,
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}
		recorded.QuestionEventID = event.ID

		if outcome.Mode == evidence.ModeAmbiguous && len(outcome.Alternatives) > 0 {
			amb := &storage.AmbiguityRecord{
				ID:              uuid.New().String(),
				QuestionEventID: event.ID,
				Alternatives:    outcome.Alternatives,
			}
			if err := tx.InsertAmbiguity(ctx, amb); err != nil {
				return err
			}
			recorded.AmbiguityEventID = amb.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// assignCluster matches the question against the topic's recent clusters:
// exact normalized key first, then centroid similarity. Unmatched questions
// start a new cluster.
func (r *Recorder) assignCluster(ctx context.Context, tx storage.InsightStore, topicID int64, normalized, question string, outcome Outcome) (int64, error) {
	clusters, err := tx.RecentClusters(ctx, topicID, recentClusterWindow)
	if err != nil {
		return 0, err
	}

	var match *storage.ClusterRecord
	for _, cluster := range clusters {
		if cluster.NormalizedKey == normalized {
			match = cluster
			break
		}
	}
	if match == nil && len(outcome.Embedding) > 0 {
		best := centroidSimilarityFloor
		for _, cluster := range clusters {
			sim := ranking.CosineDense(outcome.Embedding, cluster.Centroid)
			if sim >= best {
				best = sim
				match = cluster
			}
		}
	}

	if match != nil {
		err := tx.TouchCluster(ctx, match.ID, outcome.Embedding, outcome.Answer, string(outcome.Mode), outcome.Confidence)
		if err != nil {
			return 0, err
		}
		return match.ID, nil
	}

	return tx.CreateCluster(ctx, &storage.ClusterRecord{
		TopicID:        topicID,
		AgentID:        outcome.AgentID,
		NormalizedKey:  normalized,
		Representative: question,
		Centroid:       outcome.Embedding,
		LastAnswer:     outcome.Answer,
		LastMode:       string(outcome.Mode),
		LastConfidence: outcome.Confidence,
	})
}

// ResolveAmbiguity stores which source the user picked for an earlier
// ambiguous answer and flips its question event to answered.
func (r *Recorder) ResolveAmbiguity(ctx context.Context, ambiguityID, selectedSourceID string) error {
	if selectedSourceID == "" {
		return fmt.Errorf("selected source ID is required")
	}

	return r.store.InTx(ctx, func(tx storage.InsightStore) error {
		amb, err := tx.GetAmbiguity(ctx, ambiguityID)
		if err != nil {
			return err
		}

		if len(amb.Alternatives) > 0 {
			known := false
			for _, alt := range amb.Alternatives {
				if alt.ChunkID == selectedSourceID {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("source %s is not among the offered alternatives", selectedSourceID)
			}
		}

		if err := tx.MarkAmbiguityResolved(ctx, ambiguityID, selectedSourceID); err != nil {
			return err
		}
		return tx.MarkEventAnswered(ctx, amb.QuestionEventID, selectedSourceID, ResolutionAnswered)
	})
}

// TopicInsight is a topic with its clusters, the analytics read model.
type TopicInsight struct {
	*storage.TopicRecord
	Clusters []*storage.ClusterRecord
}

// Topics returns an agent's topics with their clusters, most asked first.
func (r *Recorder) Topics(ctx context.Context, agentID string) ([]*TopicInsight, error) {
	topics, err := r.store.ListTopics(ctx, agentID)
	if err != nil {
		return nil, err
	}

	insights := make([]*TopicInsight, 0, len(topics))
	for _, topic := range topics {
		clusters, err := r.store.ListClustersByTopic(ctx, topic.ID)
		if err != nil {
			return nil, err
		}
		insights = append(insights, &TopicInsight{TopicRecord: topic, Clusters: clusters})
	}
	return insights, nil
}

func resolutionFor(outcome Outcome) string {
	switch {
	case outcome.Mode == evidence.ModeAmbiguous:
		return ResolutionAmbiguous
	case outcome.Mode == evidence.ModeFallback, strings.TrimSpace(outcome.Answer) == "":
		return ResolutionUnresolved
	default:
		return ResolutionAnswered
	}
}
