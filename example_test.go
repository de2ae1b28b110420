package silt_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/schema"
)

type User struct {
	silt.Base
	Name  string `json:"name"`
	Email string `json:"email"`
}

func Example() {
	ctx := context.Background()

	// A memory store keeps the example hermetic; swap the adapter for
	// "fs" (the default) to persist on disk.
	reg, err := silt.New("", silt.WithAdapter("memory"))
	if err != nil {
		log.Fatal(err)
	}

	userSchema := schema.New("User",
		schema.WithCollection("users"),
		schema.WithIDKind(core.KeyString),
	).
		Field("name", schema.KindString, schema.PropOptions{Required: true}).
		Field("email", schema.KindString, schema.PropOptions{Lowercase: true, Trim: true}).
		MustBuild()

	users := silt.MustRegister[User](reg, userSchema)

	ada := &User{Name: "Ada", Email: "  Ada@Example.com "}
	ada.ID = silt.StringKey("ada")
	if err := users.Create(ctx, ada); err != nil {
		log.Fatal(err)
	}

	loaded, err := users.FindByID(ctx, silt.StringKey("ada"))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(loaded.Email)
	fmt.Println(silt.IsDocument(loaded))
	// Output:
	// ada@example.com
	// true
}
