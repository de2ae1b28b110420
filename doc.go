// Package silt is the Composition Root for the silt document mapper.
//
// It connects the typed model layer (schemas, references, hooks) with
// the storage adapters (filesystem, memory) using the Hexagonal
// Architecture pattern.
//
// Philosophy:
//
// silt treats a directory of plain JSON/YAML files as a typed document
// database. Schemas describe the shape and validation of each
// collection; models bind those schemas to Go structs; references
// between documents stay lazy until populated. While the default
// implementation uses the File System and Git, silt's core is
// agnostic, allowing other adapters (e.g. memory, S3).
//
// Features:
//
//   - **Typed Models**: generic `Model[T]` handles with schema-driven
//     validation, transforms, timestamps and hooks.
//   - **References**: tagged `Ref[T]` values (unset / key / document)
//     with batch Populate and virtual reverse lookups.
//   - **Discriminators**: total, never-panicking guards (`IsDocument`,
//     `IsRefType`) that classify any value by materialization state.
//   - **Versioned Storage**: every write becomes a Git commit when the
//     store is a repository; gitless mode works on any directory.
package silt
