// Package broadcast implements broadcast lifecycle management.
//
// The service layer contains all business logic for drafting,
// scheduling, cancelling, and dispatching broadcasts. It depends on
// the repository interface defined in this package and should never
// import from api/.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package broadcast
