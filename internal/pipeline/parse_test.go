package pipeline_test

import (
	"appideas.app/engine/internal/model"
	"appideas.app/engine/internal/pipeline"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parsers", func() {
	Describe("ParseBullets", func() {
		It("keeps bullet lines and strips markers", func() {
			items, err := pipeline.ParseBullets("### Heading\n• A\n• B\n")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{"A", "B"}))
		})

		It("accepts every marker and skips bold headings and rules", func() {
			items, err := pipeline.ParseBullets("**Features**\n- one\n* two\n• three\n---\n-   \nplain line")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{"one", "two", "three"}))
		})

		It("returns a ParseError when nothing is bulleted", func() {
			_, err := pipeline.ParseBullets("just prose")

			var parseErr *pipeline.ParseError
			Expect(err).To(BeAssignableToTypeOf(parseErr))
		})
	})

	Describe("ParseSentiment", func() {
		It("splits items under the two headings", func() {
			likes, dislikes, err := pipeline.ParseSentiment(
				"### What users like\n• fast\n• great UI\n\n### What users dislike or want changed\n• crashes often\n")

			Expect(err).NotTo(HaveOccurred())
			Expect(likes).To(Equal([]string{"fast", "great UI"}))
			Expect(dislikes).To(Equal([]string{"crashes often"}))
		})

		It("accepts bold and short headings", func() {
			likes, dislikes, err := pipeline.ParseSentiment("**Likes:**\n- sync\n**Dislikes:**\n- price")

			Expect(err).NotTo(HaveOccurred())
			Expect(likes).To(Equal([]string{"sync"}))
			Expect(dislikes).To(Equal([]string{"price"}))
		})

		It("fails strictly when a heading is missing", func() {
			_, _, err := pipeline.ParseSentiment("• fast\n• crashes")

			Expect(err).To(MatchError(ContainSubstring("heading")))
		})
	})

	Describe("SplitSentiment", func() {
		It("puts the first half in likes and the rest in dislikes", func() {
			likes, dislikes := pipeline.SplitSentiment("fast\nclean\nslow sync\nads")

			Expect(likes).To(Equal([]string{"fast", "clean"}))
			Expect(dislikes).To(Equal([]string{"slow sync", "ads"}))
		})

		It("never leaves a side empty", func() {
			likes, dislikes := pipeline.SplitSentiment("only one line")

			Expect(likes).To(Equal([]string{"only one line"}))
			Expect(dislikes).To(Equal([]string{pipeline.NoDislikesPlaceholder}))
		})

		It("uses the fixed placeholder for empty output", func() {
			likes, dislikes := pipeline.SplitSentiment("  \n ")

			Expect(likes).To(Equal([]string{pipeline.UnableToAnalyze}))
			Expect(dislikes).To(Equal([]string{pipeline.UnableToAnalyze}))
		})
	})

	Describe("ParseCommaList", func() {
		It("splits, trims and drops empties", func() {
			items, err := pipeline.ParseCommaList(" notes, docs ,, \"wiki\", tasks.")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{"notes", "docs", "wiki", "tasks"}))
		})

		It("drops a leading label", func() {
			items, err := pipeline.ParseCommaList("Keywords: a, b")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{"a", "b"}))

			items, err = pipeline.ParseCommaList("**Search terms:** note app, wiki")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{"note app", "wiki"}))
		})

		It("rejects multi-line answers so the loose splitter takes over", func() {
			text := "- notes\n- docs"
			_, err := pipeline.ParseCommaList(text)

			Expect(err).To(HaveOccurred())
			Expect(pipeline.SplitLoose(text)).To(Equal([]string{"notes", "docs"}))
		})
	})

	Describe("ParseBacklog", func() {
		It("defaults untagged items to Medium", func() {
			items, err := pipeline.ParseBacklog("3. Some task without tags")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]model.BacklogItem{
				{Priority: model.PriorityMedium, Content: "Some task without tags"},
			}))
		})

		It("reads priority tags and drops empty items", func() {
			items, err := pipeline.ParseBacklog("Backlog:\n1. [High] Offline mode\n2) [low] Themes\n3. [Medium]   \n4. [HIGH] Export")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]model.BacklogItem{
				{Priority: model.PriorityHigh, Content: "Offline mode"},
				{Priority: model.PriorityLow, Content: "Themes"},
				{Priority: model.PriorityHigh, Content: "Export"},
			}))
		})

		It("reads tags wrapped in emphasis", func() {
			items, err := pipeline.ParseBacklog("1. **[High]** Fix crashes\n2. __[Low]__ Dark mode\n3. **[Medium]:** Sync")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]model.BacklogItem{
				{Priority: model.PriorityHigh, Content: "Fix crashes"},
				{Priority: model.PriorityLow, Content: "Dark mode"},
				{Priority: model.PriorityMedium, Content: "Sync"},
			}))
		})

		It("falls back to bullets when nothing is numbered", func() {
			_, err := pipeline.ParseBacklog("- [Low] Stickers\n- Widgets")
			Expect(err).To(HaveOccurred())

			Expect(pipeline.BacklogFromBullets("- [Low] Stickers\n- Widgets")).To(Equal([]model.BacklogItem{
				{Priority: model.PriorityLow, Content: "Stickers"},
				{Priority: model.PriorityMedium, Content: "Widgets"},
			}))
		})
	})

	Describe("ParseRecommendations", func() {
		It("keeps only tagged lines", func() {
			items, err := pipeline.ParseRecommendations(
				"Here are my picks:\n[CRITICAL] Stability: Fix crashes.\n- [HIGH] Not at line start\n[HIGH] Sync: Add iCloud.\n[LOW] Ignored: Low is not a tier.\nThanks!")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{
				"[CRITICAL] Stability: Fix crashes.",
				"[HIGH] Sync: Add iCloud.",
			}))
		})

		It("orders tiers stably", func() {
			items, err := pipeline.ParseRecommendations(
				"[MEDIUM] M1: a\n[HIGH] H1: b\n[CRITICAL] C1: c\n[HIGH] H2: d\n[CRITICAL] C2: e")

			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(Equal([]string{
				"[CRITICAL] C1: c",
				"[CRITICAL] C2: e",
				"[HIGH] H1: b",
				"[HIGH] H2: d",
				"[MEDIUM] M1: a",
			}))
		})

		It("reports untagged output as a format deviation", func() {
			_, err := pipeline.ParseRecommendations("Fix crashes.\nAdd sync.")

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseText", func() {
		It("trims the completion", func() {
			text, err := pipeline.ParseText("\n  A focused notes app.  \n")

			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("A focused notes app."))
		})

		It("rejects empty output", func() {
			_, err := pipeline.ParseText("   ")

			Expect(err).To(HaveOccurred())
		})
	})
})
