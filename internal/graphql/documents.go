package graphql

// ProjectViewQuery loads the project page view for a project key.
const ProjectViewQuery = `query ProjectViewQuery(
  $key: String!
  $trackViewEvent: TrackViewEvent
  $workspaceId: ID
  $onboardingKeyFilter: OnboardingKeyFilter!
  $areMilestonesEnabled: Boolean!
  $cloudId: String!
  $isNavRefreshEnabled: Boolean!
) {
  workspaceGuard: workspace(id: $workspaceId) {
    id
  }
  project: projectByKey(key: $key, trackViewEvent: $trackViewEvent) {
    id
    key
    name
    uuid
    archived
    url
    iconUrl {
      square {
        light
        dark
      }
    }
    owner {
      aaid
      pii {
        name
        picture
      }
    }
    state {
      label
      value
    }
    dueDate: targetDate
    startDate
    goals {
      edges {
        node {
          id
          key
          name
        }
      }
    }
    milestones @include(if: $areMilestonesEnabled) {
      edges {
        node {
          id
          title
          targetDate
          status
        }
      }
    }
    latestUpdateDate
    watching
  }
  onboarding(filter: $onboardingKeyFilter) {
    edges {
      node {
        onboardingKey
      }
    }
  }
  navigation(cloudId: $cloudId) @include(if: $isNavRefreshEnabled) {
    showRefresh
  }
}`

// ProjectStatusHistoryQuery loads the status update history for a project key.
const ProjectStatusHistoryQuery = `query ProjectStatusHistoryQuery($projectKey: String!) {
  projectStatusHistory: projectByKey(key: $projectKey) {
    id
    key
    updates {
      edges {
        node {
          id
          creationDate
          editDate
          newState {
            label
            value
          }
          oldState {
            label
            value
          }
          newTargetDate
          oldTargetDate
          summary
          creator {
            aaid
            pii {
              name
            }
          }
        }
      }
    }
  }
}`
