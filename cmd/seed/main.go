// Command seed fills a running fmlsandbox with accounts, stories, comments
// and votes through the public client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/alphabot-ai/fmylife/internal/client"
	"github.com/alphabot-ai/fmylife/internal/model"
)

var users = []string{"ann", "bob", "carol", "dave", "erin"}

var stories = []struct {
	category model.Category
	text     string
}{
	{model.Love, "Today, my date brought her mother along. She ordered for both of us. FML"},
	{model.Money, "Today, I found a twenty in my old jeans. It was a receipt for the jeans. FML"},
	{model.Kids, "Today, my son told his whole class that I cry at cartoons. He is right. FML"},
	{model.Work, "Today, my boss thanked me for my hard work on a project I had never heard of. FML"},
	{model.Health, "Today, I sprained my ankle walking to the gym. FML"},
	{model.Work, "Today, I replied all. FML"},
	{model.Miscellaneous, "Today, my cat locked me out of the bathroom. I still do not know how. FML"},
	{model.Love, "Today, I proposed on a jumbotron. She said no. It was replayed twice. FML"},
}

var comments = []string{
	"Ouch.",
	"Honestly you had that one coming.",
	"This happened to me too, hang in there.",
	"FYL indeed.",
	"I laughed more than I should have.",
	"At least it makes a good story.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "fmlsandbox URL")
	key := flag.String("key", "seed-key", "API key to seed with")
	quorum := flag.Int("quorum", 3, "Moderation votes needed to publish")
	flag.Parse()

	ctx := context.Background()
	log.Printf("Seeding sandbox at %s...", *baseURL)

	var accounts []*client.Account
	for _, name := range users {
		tr := client.NewHTTPTransport()
		tr.BaseURL = *baseURL
		a := client.New(*key, client.WithSandbox(true), client.WithTransport(tr))
		if err := a.Authenticate(ctx, name, "password"); err != nil {
			log.Fatalf("login %s: %v", name, err)
		}
		log.Printf("✓ Logged in: %s", name)
		accounts = append(accounts, a)
	}

	for _, s := range stories {
		author := accounts[rand.Intn(len(accounts))]
		if err := author.Submit(ctx, model.NewStory("Anonymous", s.category, s.text)); err != nil {
			log.Printf("✗ Failed to submit story: %v", err)
		}
	}

	pending, err := accounts[0].AllUnmoderated(ctx)
	if err != nil {
		log.Fatalf("list pending: %v", err)
	}
	published := 0
	for i, id := range pending {
		// Every fourth story is rejected so the queue shows both outcomes.
		verdict := model.Approve
		if i%4 == 3 {
			verdict = model.Reject
		}
		for j := 0; j < *quorum && j < len(accounts); j++ {
			if err := accounts[j].Moderate(ctx, model.ByID(id), verdict); err != nil {
				log.Printf("✗ Failed to moderate #%s: %v", id, err)
				break
			}
		}
		if verdict == model.Approve {
			published++
		}
	}
	log.Printf("✓ Moderated %d stories", len(pending))

	latest, err := accounts[0].Latest(ctx, 0)
	if err != nil {
		log.Fatalf("latest: %v", err)
	}
	for _, s := range latest {
		ref := model.ByID(s.ID)
		for i := rand.Intn(3); i >= 0; i-- {
			a := accounts[rand.Intn(len(accounts))]
			if err := a.Comment(ctx, ref, model.NewComment(comments[rand.Intn(len(comments))], "")); err != nil {
				log.Printf("✗ Failed to comment on #%s: %v", s.ID, err)
			}
		}
		for _, a := range accounts {
			vote := model.Agree
			if rand.Float32() < 0.3 {
				vote = model.Deserved
			}
			if err := a.Vote(ctx, ref, vote); err != nil && !client.IsVoting(err) {
				log.Printf("✗ Failed to vote on #%s: %v", s.ID, err)
			}
		}
	}
	log.Printf("✓ Added comments and votes")

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Accounts:  %d\n", len(accounts))
	fmt.Printf("Submitted: %d\n", len(stories))
	fmt.Printf("Published: %d\n", published)
	fmt.Println("\nTry: fml --base-url", *baseURL, "latest")
}
