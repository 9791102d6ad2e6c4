package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("problems")

		// anyone may read the catalogue, only superusers may change it
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")

		collection.Fields.Add(
			&core.TextField{
				Name:     "title",
				Required: true,
				Max:      200,
			},
			&core.TextField{
				Name:     "slug",
				Required: true,
				Max:      100,
				Pattern:  `^[a-z0-9]+(?:-[a-z0-9]+)*$`,
			},
			&core.SelectField{
				Name:      "difficulty",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"easy", "medium", "hard"},
			},
			&core.EditorField{
				Name: "statement",
			},
			&core.JSONField{
				Name:    "starter_code",
				MaxSize: 1 << 16,
			},
			&core.BoolField{
				Name: "active",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_problems_slug", true, "slug", "")
		collection.AddIndex("idx_problems_active", false, "active", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("problems")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
