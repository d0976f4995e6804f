// Package graphqlserver exposes the GraphQL authentication API.
//
// Resolvers carry no business logic of their own: every operation delegates
// to the same services the REST surface uses, and the guard sees the same
// underlying HTTP request either way.
package graphqlserver

// Schema is the executable GraphQL schema definition.
const Schema = `
	scalar Time

	schema {
		query: Query
		mutation: Mutation
	}

	type Query {
		me: User!
		passwordStrength(password: String!): Int!
	}

	type Mutation {
		register(email: String!, password: String!, displayName: String!): User!
		login(email: String!, password: String!): AuthPayload!
		logout: Boolean!
		refresh(refreshToken: String): AuthPayload!
	}

	type User {
		id: ID!
		email: String!
		displayName: String!
		role: String!
		verifiedAt: Time
		createdAt: Time!
		updatedAt: Time!
	}

	type AuthPayload {
		accessToken: String!
		refreshToken: String!
		user: User!
	}
`
