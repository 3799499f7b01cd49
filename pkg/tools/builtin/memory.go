package builtin

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
)

// maxUnfilteredNotes is how many notes read_notes returns without a query.
const maxUnfilteredNotes = 10

func memoryTools(d *Deps) []tools.Handler {
	return []tools.Handler{
		storeMemory(d),
		getMemories(d),
		addNote(d),
		readNotes(d),
		addTask(d),
		readTasks(d),
		updateDashboard(d),
	}
}

func storeMemory(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "store_memory",
		Description: "Saves a new fact or important information about the user to long-term memory.",
		Parameters: object([]string{"content"}, map[string]*genai.Schema{
			"content":  str(`The fact or information to remember (e.g., "The user loves black coffee").`),
			"category": str(`Optional category (e.g., "preference", "fact", "personal").`),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		content, err := tools.String(call.Args, "content", true)
		if err != nil {
			return tools.Result{}, err
		}
		category, err := tools.String(call.Args, "category", false)
		if err != nil {
			return tools.Result{}, err
		}
		memories, err := d.Store.AddMemory(ctx, content, category)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "memories", map[string]any{"memories": memories})
		return tools.Reply("Memory stored successfully."), nil
	})
}

func getMemories(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "get_memories",
		Description: "Retrieves all stored information and facts about the user.",
		Parameters:  object(nil, nil),
	}, func(ctx context.Context, _ tools.Call) (tools.Result, error) {
		memories, err := d.Store.Memories(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Payload(map[string]any{"memories": memories}), nil
	})
}

func addNote(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "add_note",
		Description: `Creates a new note in the user's notebook. Use this when the user asks to "take a note", "remember this idea", or "save this text".`,
		Parameters: object([]string{"title", "content"}, map[string]*genai.Schema{
			"title":    str("Title of the note."),
			"content":  str("The main content/body of the note."),
			"category": str("Category (e.g., Work, Personal, Ideas)."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		title, err := tools.String(call.Args, "title", true)
		if err != nil {
			return tools.Result{}, err
		}
		content, err := tools.String(call.Args, "content", true)
		if err != nil {
			return tools.Result{}, err
		}
		category, err := tools.String(call.Args, "category", false)
		if err != nil {
			return tools.Result{}, err
		}
		notes, err := d.Store.AddNote(ctx, title, content, category)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "notes", map[string]any{"notes": notes})
		return tools.Reply("Note created successfully."), nil
	})
}

func readNotes(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "read_notes",
		Description: `Retrieves user notes. Can search by keyword or category. Use this when user asks "What are my notes?", "Find note about X", or "Read my notes".`,
		Parameters: object(nil, map[string]*genai.Schema{
			"query": str("Optional keyword to filter notes."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		query, err := tools.String(call.Args, "query", false)
		if err != nil {
			return tools.Result{}, err
		}
		notes, err := d.Store.Notes(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		notes = FilterNotes(notes, query)
		return tools.Payload(map[string]any{"count": len(notes), "notes": notes}), nil
	})
}

// FilterNotes keeps notes whose title, content or category contains query,
// case-insensitively. An empty query keeps the newest ten.
func FilterNotes(notes []store.Note, query string) []store.Note {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		if len(notes) > maxUnfilteredNotes {
			notes = notes[:maxUnfilteredNotes]
		}
		return notes
	}
	out := make([]store.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.Content), q) ||
			strings.Contains(strings.ToLower(n.Category), q) {
			out = append(out, n)
		}
	}
	return out
}

func addTask(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "add_task",
		Description: `Adds a task to the user's to-do list. Use this when the user says "remind me to", "add to my list", or "I need to".`,
		Parameters: object([]string{"text"}, map[string]*genai.Schema{
			"text":     str("What needs to be done."),
			"priority": str("Task priority. Defaults to medium.", "low", "medium", "high"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		text, err := tools.String(call.Args, "text", true)
		if err != nil {
			return tools.Result{}, err
		}
		priority, err := tools.Enum(call.Args, "priority", false, "low", "medium", "high")
		if err != nil {
			return tools.Result{}, err
		}
		tasks, err := d.Store.AddTask(ctx, text, priority)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "tasks", map[string]any{"tasks": tasks})
		return tools.Reply("Task added to your list."), nil
	})
}

func readTasks(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "read_tasks",
		Description: `Retrieves user tasks (To-Do list). Use this when user asks "What are my tasks?", "What do I need to do?", or "Read my to-do list".`,
		Parameters: object(nil, map[string]*genai.Schema{
			"filter": str(`Filter tasks by status or priority. Defaults to "all".`, "all", "pending", "completed", "high"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		filter, err := tools.Enum(call.Args, "filter", false, "all", "pending", "completed", "high")
		if err != nil {
			return tools.Result{}, err
		}
		if filter == "" {
			filter = "all"
		}
		tasks, err := d.Store.Tasks(ctx)
		if err != nil {
			return tools.Result{}, err
		}
		tasks = FilterTasks(tasks, filter)
		return tools.Payload(map[string]any{"filter": filter, "count": len(tasks), "tasks": tasks}), nil
	})
}

// FilterTasks applies a read_tasks filter. "high" selects open high-priority tasks.
func FilterTasks(tasks []store.Task, filter string) []store.Task {
	out := make([]store.Task, 0, len(tasks))
	for _, t := range tasks {
		switch filter {
		case "pending":
			if t.Completed {
				continue
			}
		case "completed":
			if !t.Completed {
				continue
			}
		case "high":
			if t.Completed || t.Priority != "high" {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func updateDashboard(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "update_dashboard",
		Description: "Updates the UI dashboard with the latest news headlines and weather information.",
		Parameters: object([]string{"headlines", "weather"}, map[string]*genai.Schema{
			"headlines": {
				Type:        genai.TypeArray,
				Items:       str(""),
				Description: "A list of 3-5 top news headlines.",
			},
			"weather": object([]string{"today", "tomorrow", "dayAfter"}, map[string]*genai.Schema{
				"today":    str(`Summary for today, e.g., "72°F, Clear"`),
				"tomorrow": str("Summary for tomorrow"),
				"dayAfter": str("Summary for day after tomorrow"),
			}),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		headlines, err := tools.Strings(call.Args, "headlines", true)
		if err != nil {
			return tools.Result{}, err
		}
		w, err := tools.Object(call.Args, "weather", true)
		if err != nil {
			return tools.Result{}, err
		}
		var weather store.Weather
		if weather.Today, err = tools.String(w, "today", false); err != nil {
			return tools.Result{}, err
		}
		if weather.Tomorrow, err = tools.String(w, "tomorrow", false); err != nil {
			return tools.Result{}, err
		}
		if weather.DayAfter, err = tools.String(w, "dayAfter", false); err != nil {
			return tools.Result{}, err
		}
		dash, err := d.Store.UpdateDashboard(ctx, headlines, weather)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "dashboard", map[string]any{"headlines": dash.Headlines, "weather": dash.Weather})
		return tools.Reply("Dashboard updated successfully."), nil
	})
}
