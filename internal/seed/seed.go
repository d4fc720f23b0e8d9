// Package seed loads a realistic demo dataset: one chronic lymphocytic
// leukemia topic with a quarter-by-quarter literature history, past detection
// runs, and a push ledger with its diff lineage backfilled.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"medbrief/internal/store"
	"medbrief/pkg/compare"
	"medbrief/pkg/lineage"
)

const diffPlaceholder = "Q1 research centered on CLL molecular mechanisms, diagnostics, and frontline therapy, with BTK and BCL-2 inhibitors leading fixed-duration strategies; Q2 shifted toward MRD-guided therapy, risk stratification, and management of double-refractory disease, with pirtobrutinib and CAR-T emerging as the next wave."

type litSeed struct {
	title    string
	authors  []string
	daysAgo  int
	journal  string
	keywords []string
	summary  string
	litType  string
}

// Run inserts the demo dataset. Dates are anchored to now so the trend and
// analysis views have data inside their windows.
func Run(ctx context.Context, s store.Store) error {
	now := time.Now().UTC()

	topic := store.Topic{
		Name:                 "Chronic Lymphocytic Leukemia (Quarterly)",
		Keywords:             []string{"CLL", "Ibrutinib", "Venetoclax", "BTK inhibitors", "Minimal Residual Disease"},
		Frequency:            store.FrequencyQuarterly,
		NotificationChannels: []store.Channel{store.ChannelEmail, store.ChannelAppPush},
		Template:             "modern_blue",
	}
	if err := s.CreateTopic(ctx, &topic); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	fmt.Fprintf(os.Stderr, "seed: topic %q created with id %d\n", topic.Name, topic.ID)

	entries := []litSeed{
		{
			title:    "Chronic Lymphocytic Leukemia: 2025 Update on the Epidemiology, Pathogenesis, Diagnosis, and Therapy",
			authors:  []string{"Hallek, M.", "Al-Sawaf, O."},
			daysAgo:  215,
			journal:  "American Journal of Hematology",
			keywords: []string{"CLL", "Epidemiology", "Pathogenesis", "Therapy"},
			summary:  "Combinations of targeted agents now provide efficient therapies with a fixed duration that generate deep and durable remissions. The paper reviews epidemiology, pathogenesis, diagnosis, and evolving treatments.",
			litType:  "Review",
		},
		{
			title:    "Fixed-Duration Acalabrutinib Combinations in Untreated Chronic Lymphocytic Leukemia",
			authors:  []string{"Brown, J. R.", "Sharman, J. P."},
			daysAgo:  192,
			journal:  "New England Journal of Medicine",
			keywords: []string{"Acalabrutinib", "Fixed-Duration Therapy", "CLL", "Phase 3 Trial"},
			summary:  "This Phase 3 trial evaluated fixed-duration acalabrutinib combinations in untreated CLL patients, demonstrating significant efficacy and a manageable safety profile.",
			litType:  "Clinical Trial",
		},
		{
			title:    "Is MRD testing ready for general use in CLL?",
			authors:  []string{"Owen, C."},
			daysAgo:  185,
			journal:  "Clinical Advances in Hematology & Oncology",
			keywords: []string{"Minimal Residual Disease", "MRD", "Diagnostics", "CLL"},
			summary:  "Review discussing current MRD detection methods in CLL and their clinical applicability for guiding therapy.",
			litType:  "Review",
		},
		{
			title:    "When and How Long to Treat Chronic Lymphocytic Leukemia?",
			authors:  []string{"Eichhorst, B.", "Goede, V."},
			daysAgo:  130,
			journal:  "Journal of Clinical Oncology",
			keywords: []string{"CLL Treatment Duration", "Allogeneic Transplant", "Targeted Therapy"},
			summary:  "Discusses optimal timing and duration of CLL therapies, including BTK inhibitors and BCL-2 antagonists.",
			litType:  "Review",
		},
		{
			title:    "Measurable Residual Disease-Guided Therapy for Chronic Lymphocytic Leukemia",
			authors:  []string{"Munir, T.", "Girvan, S.", "Cairns, D. A.", "Hillmen, P."},
			daysAgo:  78,
			journal:  "New England Journal of Medicine",
			keywords: []string{"MRD-Guided Therapy", "Progression-Free Survival", "CLL"},
			summary:  "With extended follow-up, undetectable MRD and extended progression-free survival were more common with ibrutinib-venetoclax than with ibrutinib alone or FCR.",
			litType:  "Clinical Trial",
		},
		{
			title:    "Cardiac Events Across Three Acalabrutinib Phase 3 Trials in Chronic Lymphocytic Leukemia",
			authors:  []string{"O'Quinn, R."},
			daysAgo:  124,
			journal:  "Clinical Lymphoma Myeloma and Leukemia",
			keywords: []string{"Cardiac Events", "Acalabrutinib", "Safety", "CLL"},
			summary:  "Meta-analysis of cardiac adverse events in CLL patients treated with acalabrutinib in Phase 3 trials.",
			litType:  "Meta-analysis",
		},
		{
			title:    "Doubling down: the new deal in the clinical management of double-refractory chronic lymphocytic leukemia",
			authors:  []string{"Bennett, R.", "Seymour, J. F."},
			daysAgo:  53,
			journal:  "Blood",
			keywords: []string{"Double-Refractory CLL", "BTK Inhibitors", "Clinical Management"},
			summary:  "Targeted therapy with covalent BTK inhibitors and venetoclax is established in CLL, but double-refractory disease poses challenges. The review discusses pirtobrutinib, CD19 CAR-T, and emerging therapies.",
			litType:  "Review",
		},
		{
			title:    "Fixed-Duration Ibrutinib/Venetoclax Shows Durable Responses in CLL",
			authors:  []string{"Ghia, P."},
			daysAgo:  52,
			journal:  "Targeted Oncology",
			keywords: []string{"Ibrutinib", "Venetoclax", "Fixed-Duration", "IGHV Mutated"},
			summary:  "Fixed-duration ibrutinib plus venetoclax offers long-term efficacy and safety. 73% of patients remained treatment-free 5.5 years after therapy, with MRD status predicting outcomes.",
			litType:  "Clinical Trial",
		},
		{
			title:    "BRUIN CLL-321: Pirtobrutinib vs Idelalisib/Rituximab in Relapsed/Refractory CLL",
			authors:  []string{"Tam, C. S."},
			daysAgo:  34,
			journal:  "Journal of Clinical Oncology",
			keywords: []string{"Pirtobrutinib", "Idelalisib", "Rituximab", "Relapsed CLL", "Phase 3 Trial"},
			summary:  "Randomized Phase 3 trial comparing pirtobrutinib to standard therapies in relapsed/refractory CLL patients.",
			litType:  "Clinical Trial",
		},
		{
			title:    "Systematic Literature Review of Cardiovascular Safety Outcomes in Chronic Lymphocytic Leukemia Therapies",
			authors:  []string{"Johnson, A."},
			daysAgo:  28,
			journal:  "Journal of Cardio-Oncology",
			keywords: []string{"Cardiovascular Safety", "CLL", "Therapies", "Systematic Review"},
			summary:  "Systematic review evaluating cardiovascular risks associated with current CLL therapeutic regimens.",
			litType:  "Systematic Review",
		},
	}

	for _, e := range entries {
		lit := store.Literature{
			TopicID:         topic.ID,
			Title:           e.title,
			Authors:         e.authors,
			PublicationDate: now.AddDate(0, 0, -e.daysAgo),
			JournalName:     e.journal,
			Keywords:        e.keywords,
			Summary:         e.summary,
			LiteratureType:  e.litType,
		}
		if err := s.InsertLiterature(ctx, &lit); err != nil {
			return fmt.Errorf("insert literature %q: %w", e.title, err)
		}
	}
	fmt.Fprintf(os.Stderr, "seed: %d literature records inserted\n", len(entries))

	// Two completed quarterly detection runs, each followed by a deck push
	// fifteen minutes later.
	runs := []struct {
		daysAgo  int
		filename string
	}{
		{daysAgo: 160, filename: "CLL_research_update_Q1.pptx"},
		{daysAgo: 70, filename: "CLL_research_update_Q2.pptx"},
	}
	recipients := []string{"oncology_dept_head@medbrief.com", "research_lead@medbrief.com"}

	for _, r := range runs {
		ts := now.AddDate(0, 0, -r.daysAgo)
		link := "/PPT/" + r.filename
		if err := s.AddUpdateRecord(ctx, &store.UpdateRecord{
			TopicID:        topic.ID,
			Timestamp:      ts,
			Status:         store.UpdateSuccess,
			PPTPreviewLink: &link,
		}); err != nil {
			return fmt.Errorf("insert update record: %w", err)
		}
		if err := s.InsertPushRecord(ctx, &store.PushRecord{
			TopicID:     topic.ID,
			TopicName:   topic.Name,
			PushTime:    ts.Add(15 * time.Minute),
			PPTFilename: r.filename,
			Recipients:  recipients,
			Channel:     "email",
			Status:      store.PushSuccess,
		}); err != nil {
			return fmt.Errorf("insert push record: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "seed: %d detection runs and pushes inserted\n", len(runs))

	eng := lineage.NewEngine(s, nil, &compare.StaticComparator{Summary: diffPlaceholder})
	created, err := eng.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill diffs: %w", err)
	}
	fmt.Fprintf(os.Stderr, "seed: %d diff records created\n", created)
	return nil
}
