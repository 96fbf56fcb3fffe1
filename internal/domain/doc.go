// Package domain contains the core entities of mealsync.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure (HTTP, SQL, file system, logging) and holds only the
// meal model, the mutation variants that describe pending writes, and the
// error values the rest of the module classifies failures with.
//
// # Entities
//
//   - [MealRecord]: a logged meal with its nutrition and quality scores
//   - [Mutation]: a pending write, one of [CreateMeal], [UpdateMeal], [DeleteMeal]
//   - [QueueEntry]: a mutation plus its retry count and enqueue time
//   - [EntryKey]: the identity the reconciler removes entries by
package domain
