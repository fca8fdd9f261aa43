package sandbox

import (
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/alphabot-ai/fmylife/internal/store"
)

// response builds one <root> envelope.
type response struct {
	doc  *etree.Document
	root *etree.Element
}

func newResponse(code int) *response {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("root")
	root.CreateElement("code").SetText(strconv.Itoa(code))
	return &response{doc: doc, root: root}
}

func success() *response { return newResponse(1) }

func failure(messages ...string) *response {
	resp := newResponse(0)
	errs := resp.root.CreateElement("errors")
	for _, msg := range messages {
		errs.CreateElement("error").SetText(msg)
	}
	return resp
}

func (r *response) items() *etree.Element {
	if el := r.root.SelectElement("items"); el != nil {
		return el
	}
	return r.root.CreateElement("items")
}

func (r *response) addStories(stories ...store.Story) *response {
	items := r.items()
	for _, s := range stories {
		item := items.CreateElement("item")
		item.CreateAttr("id", strconv.FormatInt(s.ID, 10))
		item.CreateElement("author").SetText(s.Author)
		item.CreateElement("category").SetText(s.Category)
		item.CreateElement("date").SetText(formatTime(s.CreatedAt))
		item.CreateElement("agree").SetText(strconv.Itoa(s.Agree))
		item.CreateElement("deserved").SetText(strconv.Itoa(s.Deserved))
		item.CreateElement("comments").SetText(strconv.Itoa(s.Comments))
		item.CreateElement("text").SetText(s.Text)
		item.CreateElement("comments_flag").SetText("1")
	}
	return r
}

// addIDs lists bare story ids, as the moderation queue does.
func (r *response) addIDs(stories ...store.Story) *response {
	items := r.items()
	for _, s := range stories {
		items.CreateElement("item").SetText(strconv.FormatInt(s.ID, 10))
	}
	return r
}

func (r *response) addComments(comments []store.Comment) *response {
	list := r.root.CreateElement("comments")
	for _, c := range comments {
		el := list.CreateElement("comment")
		el.CreateAttr("id", strconv.FormatInt(c.ID, 10))
		el.CreateAttr("pub_id", strconv.Itoa(c.PubID))
		staff := "0"
		if c.Staff {
			staff = "1"
		}
		el.CreateAttr("staff", staff)
		author := el.CreateElement("author")
		author.SetText(c.Author)
		if c.AuthorURL != "" {
			author.CreateAttr("url", c.AuthorURL)
		}
		el.CreateElement("date").SetText(formatTime(c.CreatedAt))
		el.CreateElement("text").SetText(c.Text)
	}
	return r
}

func (r *response) setToken(token string) *response {
	r.root.CreateElement("token").SetText(token)
	return r
}

// usage is what /dev reports for an api key.
type usage struct {
	Last24h int
	Alltime int
	Tokens  int
}

func (r *response) setDeveloper(dev store.Developer, u usage) *response {
	infos := r.root.CreateElement("infos")
	infos.CreateElement("name").SetText(dev.Name)
	infos.CreateElement("project").SetText(dev.Project)
	infos.CreateElement("description").SetText(dev.Description)
	infos.CreateElement("url").SetText(dev.URL)
	infos.CreateElement("mail").SetText(dev.Email)
	actions := r.root.CreateElement("actions")
	actions.CreateElement("last24h").SetText(strconv.Itoa(u.Last24h))
	actions.CreateElement("alltime").SetText(strconv.Itoa(u.Alltime))
	r.root.CreateElement("tokens").SetText(strconv.Itoa(u.Tokens))
	return r
}

func (r *response) write(w http.ResponseWriter, status int) {
	r.doc.Indent(2)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = r.doc.WriteTo(w)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
