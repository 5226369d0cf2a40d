package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/stickies/pkg/core"
)

var (
	listJSON    bool
	addTitle    string
	addContent  string
	editTitle   string
	editContent string
)

func parseID(arg string) int {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		fatal("Invalid note id", fmt.Errorf("%q", arg))
	}
	return id
}

// preview is the first line of content, cut to fit a terminal row.
func preview(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	if r := []rune(line); len(r) > 48 {
		line = string(r[:47]) + "…"
	}
	return line
}

func printNotes(notes []core.Note) {
	if listJSON {
		printJSON(notes)
		return
	}
	for _, n := range notes {
		fmt.Printf("%d\t%s\t%s\n", n.ID, n.Title, preview(n.Content))
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all notes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)
		printNotes(app.Service.GetAll())
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Find notes whose title or content contains term (case-insensitive)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		term := ""
		if len(args) == 1 {
			term = args[0]
		}
		app := openApp()
		defer closeApp(app)
		printNotes(app.Service.Search(term))
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)
		ctx := context.Background()

		note := app.Service.Create(ctx)
		fields := core.NoteFields{}
		if cmd.Flags().Changed("title") {
			fields.Title = &addTitle
		}
		if cmd.Flags().Changed("content") {
			fields.Content = &addContent
		}
		if fields.Title != nil || fields.Content != nil {
			app.Service.SaveManually(ctx, note.ID, fields)
		}

		fmt.Printf("Note created: %d\n", note.ID)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Change the title or content of a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		fields := core.NoteFields{}
		if cmd.Flags().Changed("title") {
			fields.Title = &editTitle
		}
		if cmd.Flags().Changed("content") {
			fields.Content = &editContent
		}
		if fields.Title == nil && fields.Content == nil {
			fmt.Println("Error: --title or --content is required")
			cmd.Usage()
			os.Exit(1)
		}

		app := openApp()
		defer closeApp(app)

		if !app.Service.SaveManually(context.Background(), id, fields) {
			closeApp(app)
			fatal("Error editing note", fmt.Errorf("note %d: %w", id, core.ErrNotFound))
		}
		fmt.Printf("Note saved: %d\n", id)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		app := openApp()
		defer closeApp(app)

		if !app.Service.Delete(context.Background(), id) {
			closeApp(app)
			fatal("Error deleting note", fmt.Errorf("note %d: %w", id, core.ErrNotFound))
		}
		fmt.Printf("Note deleted: %d\n", id)
	},
}

func init() {
	rootCmd.AddCommand(listCmd, searchCmd, addCmd, editCmd, rmCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	searchCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")

	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "Note title (default: Note N)")
	addCmd.Flags().StringVarP(&addContent, "content", "c", "", "Note content")

	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVarP(&editContent, "content", "c", "", "New content")
}
