package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

type seedProblem struct {
	title       string
	slug        string
	difficulty  string
	statement   string
	starterCode map[string]string
}

var seedProblems = []seedProblem{
	{
		title:      "Two Sum",
		slug:       "two-sum",
		difficulty: "easy",
		statement:  "<p>Given an array of integers and a target, print the indices of the two numbers that add up to the target.</p>",
		starterCode: map[string]string{
			"python": "def two_sum(nums, target):\n    pass\n",
			"go":     "package main\n\nfunc twoSum(nums []int, target int) []int {\n\treturn nil\n}\n",
		},
	},
	{
		title:      "Valid Parentheses",
		slug:       "valid-parentheses",
		difficulty: "easy",
		statement:  "<p>Given a string of brackets, print <code>true</code> if every bracket is closed in the right order.</p>",
		starterCode: map[string]string{
			"python": "def is_valid(s):\n    pass\n",
			"go":     "package main\n\nfunc isValid(s string) bool {\n\treturn false\n}\n",
		},
	},
	{
		title:      "Longest Substring Without Repeating Characters",
		slug:       "longest-substring",
		difficulty: "medium",
		statement:  "<p>Print the length of the longest substring without repeating characters.</p>",
		starterCode: map[string]string{
			"python": "def length_of_longest_substring(s):\n    pass\n",
			"go":     "package main\n\nfunc lengthOfLongestSubstring(s string) int {\n\treturn 0\n}\n",
		},
	},
}

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("problems")
		if err != nil {
			return err
		}

		for _, p := range seedProblems {
			record := core.NewRecord(collection)
			record.Set("title", p.title)
			record.Set("slug", p.slug)
			record.Set("difficulty", p.difficulty)
			record.Set("statement", p.statement)
			record.Set("starter_code", p.starterCode)
			record.Set("active", true)

			if err := app.Save(record); err != nil {
				return err
			}
		}
		return nil
	}, func(app core.App) error {
		for _, p := range seedProblems {
			record, err := app.FindFirstRecordByData("problems", "slug", p.slug)
			if err != nil {
				continue
			}
			if err := app.Delete(record); err != nil {
				return err
			}
		}
		return nil
	})
}
